package backend

import (
	"database/sql"
	"encoding/json"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"

	qerrors "github.com/ha1tch/qconsole/pkg/errors"
)

// ScanRows reads at most limit rows into records. It is shared by the
// database/sql based drivers; the caller still owns rows and must close it.
func ScanRows(rows *sql.Rows, limit int) ([]Record, error) {
	columns, err := rows.Columns()
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecScan, "failed to read columns").Err()
	}

	colTypes, err := rows.ColumnTypes()
	if err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecScan, "failed to read column types").Err()
	}
	typeNames := make([]string, len(colTypes))
	for i, ct := range colTypes {
		typeNames[i] = ct.DatabaseTypeName()
	}

	records := make([]Record, 0)
	for len(records) < limit && rows.Next() {
		values := make([]interface{}, len(columns))
		valuePtrs := make([]interface{}, len(columns))
		for i := range values {
			valuePtrs[i] = &values[i]
		}

		if err := rows.Scan(valuePtrs...); err != nil {
			return nil, qerrors.Wrap(err, qerrors.ErrCodeExecScan, "failed to scan row").
				WithField("row", len(records)+1).
				Err()
		}

		for i := range values {
			values[i] = Normalize(values[i], typeNames[i])
		}
		records = append(records, NewRecord(columns, values))
	}

	if err := rows.Err(); err != nil {
		return nil, qerrors.Wrap(err, qerrors.ErrCodeExecFailed, "query failed").Err()
	}
	return records, nil
}

// IsExactNumeric reports whether a database type name denotes a fixed
// point column whose values must not pass through float64.
func IsExactNumeric(typeName string) bool {
	t := strings.ToUpper(typeName)
	if i := strings.IndexByte(t, '('); i >= 0 {
		t = t[:i]
	}
	switch strings.TrimSpace(t) {
	case "DECIMAL", "NUMERIC", "MONEY", "SMALLMONEY", "NUMBER", "CURRENCY":
		return true
	}
	return false
}

// Normalize converts a driver value into a JSON friendly scalar. Exact
// numerics become json.Number so that they serialise without rounding.
func Normalize(v interface{}, typeName string) interface{} {
	switch x := v.(type) {
	case nil:
		return nil
	case []byte:
		if IsExactNumeric(typeName) {
			if d, err := decimal.NewFromString(string(x)); err == nil {
				return Decimal(d)
			}
		}
		return string(x)
	case string:
		if IsExactNumeric(typeName) {
			if d, err := decimal.NewFromString(x); err == nil {
				return Decimal(d)
			}
		}
		return x
	case decimal.Decimal:
		return Decimal(x)
	case *big.Int:
		if x == nil {
			return nil
		}
		return json.Number(x.String())
	default:
		return v
	}
}

// Decimal renders a decimal as a JSON number.
func Decimal(d decimal.Decimal) json.Number {
	return json.Number(d.String())
}
