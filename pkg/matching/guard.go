package matching

import (
	"fmt"

	"github.com/Ramsey-B/fern/pkg/models"
)

// IdentityConflict reports whether two attribute sets carry identifiers that cannot both
// describe the same real-world entity: a driver's date of birth or a team's founding year.
// Missing values never conflict.
func IdentityConflict(incoming, existing models.Attributes) (string, bool) {
	switch in := incoming.(type) {
	case models.DriverAttributes:
		ex, ok := existing.(models.DriverAttributes)
		if ok && in.DateOfBirth.IsSet() && ex.DateOfBirth.IsSet() && !in.DateOfBirth.Equal(ex.DateOfBirth) {
			return fmt.Sprintf("date of birth %s vs %s", in.DateOfBirth.Format("2006-01-02"), ex.DateOfBirth.Format("2006-01-02")), true
		}
	case models.TeamAttributes:
		ex, ok := existing.(models.TeamAttributes)
		if ok && in.FoundedYear != 0 && ex.FoundedYear != 0 && in.FoundedYear != ex.FoundedYear {
			return fmt.Sprintf("founded %d vs %d", in.FoundedYear, ex.FoundedYear), true
		}
	}
	return "", false
}
