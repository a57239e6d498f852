package common

import (
	"github.com/voxeldelve/mapsync/engine/uuid"
)

// CLIENTID_LENGTH is the length of Client IDs
const CLIENTID_LENGTH = uuid.UUID_LENGTH

// ClientID is the per-connection ID assigned by the server when a client
// connects. Each of a client's two connections gets its own ClientID; the
// stable identity across both connections (and across reconnects) is the
// client-generated ClientUID.
type ClientID string

// GenClientID generates a new Client ID
func GenClientID() ClientID {
	return ClientID(uuid.GenUUID())
}

// IsNil returns if ClientID is nil
func (id ClientID) IsNil() bool {
	return id == ""
}

// ClientUID is the client-generated unique identity, stable across
// reconnects and shared by the gameplay and bulk connections of one client
type ClientUID string

// GenClientUID generates a new ClientUID
func GenClientUID() ClientUID {
	return ClientUID(uuid.GenUUID())
}

// IsNil returns if ClientUID is nil
func (uid ClientUID) IsNil() bool {
	return uid == ""
}

// MapID identifies one generated world snapshot
type MapID string

// IsNil returns if MapID is nil
func (id MapID) IsNil() bool {
	return id == ""
}
