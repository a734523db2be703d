package lockmgr

import "github.com/google/uuid"

// NewOwnerID returns a random version 4 uuid in its 16 byte form.
// Owner ids identify one ClusterLock instance, i.e. one node process.
func NewOwnerID() ([]byte, error) {
	id, err := uuid.NewRandom()
	if err != nil {
		return nil, err
	}
	return id[:], nil
}
