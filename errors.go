package harvester

import "errors"

var (
	// ErrProductNotFound names a missing product seed file. No function in
	// this package returns it.
	ErrProductNotFound = errors.New("harvester: product not found")

	// ErrInvalidIdentityLock is returned when a product's identity_lock is
	// missing brand or model, spec.md §3's invariant.
	ErrInvalidIdentityLock = errors.New("harvester: identity_lock requires brand and model")

	// ErrIdentityGateClosed names an identity gate closed by a hard
	// conflict. RunProduct does not return it: a closed gate ends the run
	// with validated=false in its summary.
	ErrIdentityGateClosed = errors.New("harvester: identity gate closed with hard conflict")

	// ErrArtifactsNotLoaded is returned when a category's compiled field
	// rules have not been loaded before a run starts.
	ErrArtifactsNotLoaded = errors.New("harvester: category artifacts not loaded")

	// ErrQueueCorrupt names unparseable queue state JSON. NewQueueStore
	// does not return it: a corrupt file yields empty state with Recovered
	// set to true.
	ErrQueueCorrupt = errors.New("harvester: queue state corrupt")

	// ErrRunCancelled names an externally cancelled run. RunProduct does
	// not return it; a cancelled context surfaces as the wrapped context
	// error.
	ErrRunCancelled = errors.New("harvester: run cancelled")

	// ErrStoreClosed is returned when operating on a closed engine.
	ErrStoreClosed = errors.New("harvester: engine is closed")
)
