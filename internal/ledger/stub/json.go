package stub

import "encoding/json"

// roundTripJSON copies v into result the way the wire would.
func roundTripJSON(v interface{}, result interface{}) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return json.Unmarshal(data, result)
}
