package vedfolnir

import "github.com/iolaire/Vedfolnir-AI-Powered-Accessibility-for-the-Fediverse-sub007/id"

// ID is the primary identifier type for all Vedfolnir entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
