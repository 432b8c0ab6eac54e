package postgres

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// explicitTimes maps a list of absolute UTC timestamps onto a jsonb
// column.
type explicitTimes []time.Time

func (e explicitTimes) Value() (driver.Value, error) {
	if len(e) == 0 {
		return []byte("[]"), nil
	}
	return json.Marshal([]time.Time(e))
}

func (e *explicitTimes) Scan(src any) error {
	if src == nil {
		*e = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into explicitTimes", src)
	}
	return json.Unmarshal(data, (*[]time.Time)(e))
}

// jsonMap maps free-form log details onto a jsonb column.
type jsonMap map[string]any

func (m jsonMap) Value() (driver.Value, error) {
	if m == nil {
		return []byte("{}"), nil
	}
	return json.Marshal(map[string]any(m))
}

func (m *jsonMap) Scan(src any) error {
	if src == nil {
		*m = nil
		return nil
	}
	var data []byte
	switch v := src.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into jsonMap", src)
	}
	return json.Unmarshal(data, (*map[string]any)(m))
}
