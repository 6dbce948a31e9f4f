package storage

import "renderhub/internal/ports"

// Provider is the shared asset store used by the API, the worker and the
// preview session.
type Provider = ports.StorageProvider
