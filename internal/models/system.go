package models

import "github.com/google/uuid"

// SystemActorID is recorded on transitions applied by the platform itself
// (processor confirmations, reconciliation) rather than by a user.
var SystemActorID = uuid.MustParse("00000000-0000-0000-0000-000000000001")
