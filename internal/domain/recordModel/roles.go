package recordModel

import "github.com/kvallam/MedVaultAPI/internal/domain/faults"

// Role is a closed enumeration. Anything outside the four known values is
// rejected at the boundary and never reaches an access decision.
type Role string

const (
	RolePatient Role = "patient"
	RoleDoctor  Role = "doctor"
	RoleManager Role = "hospital_manager"
	RoleAdmin   Role = "admin"
)

func ParseRole(raw string) (Role, error) {
	switch Role(raw) {
	case RolePatient, RoleDoctor, RoleManager, RoleAdmin:
		return Role(raw), nil
	default:
		return "", faults.Validation("unknown role %q", raw)
	}
}

// Caller identifies the authenticated principal on a request. Identity is
// established by the upstream auth gateway; this service only consumes it.
type Caller struct {
	UserId string `json:"user_id"`
	Role   Role   `json:"role"`
}

// CanDeleteRecords reports whether the role may destroy records. Deletion
// cascades to chunks, so it is restricted to managers and admins.
func (c Caller) CanDeleteRecords() bool {
	return c.Role == RoleManager || c.Role == RoleAdmin
}
