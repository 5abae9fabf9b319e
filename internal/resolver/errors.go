package resolver

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

var errAccessDenied = errors.New("access denied")

// privilegeErrors are the server error numbers for denied database, table
// and column access (ER_DBACCESS_DENIED_ERROR and friends).
var privilegeErrors = map[uint16]bool{1044: true, 1142: true, 1143: true}

// normalizeQueryError replaces privilege failures with errAccessDenied so
// clients never see grant details.
func normalizeQueryError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) && privilegeErrors[myErr.Number] {
		return errAccessDenied
	}
	return err
}
