package events

import (
	"encoding/json"
	"fmt"
)

// SetData replaces the Data field with the JSON form of a payload struct.
func (e *Event) SetData(data interface{}) error {
	dataMap, err := structToMap(data)
	if err != nil {
		return fmt.Errorf("failed to convert %T: %w", data, err)
	}
	e.Data = dataMap
	return nil
}

// GetData decodes the Data field into target.
func (e *Event) GetData(target interface{}) error {
	if err := mapToStruct(e.Data, target); err != nil {
		return fmt.Errorf("failed to parse %T: %w", target, err)
	}
	return nil
}

// GetFixData retrieves FixData from the Data field.
func (e *Event) GetFixData() (*FixData, error) {
	var data FixData
	if err := e.GetData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// GetClassifiedData retrieves ClassifiedData from the Data field.
func (e *Event) GetClassifiedData() (*ClassifiedData, error) {
	var data ClassifiedData
	if err := e.GetData(&data); err != nil {
		return nil, err
	}
	return &data, nil
}

// structToMap converts a struct to map[string]interface{} using JSON marshaling.
func structToMap(data interface{}) (map[string]interface{}, error) {
	bytes, err := json.Marshal(data)
	if err != nil {
		return nil, err
	}
	var result map[string]interface{}
	if err := json.Unmarshal(bytes, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// mapToStruct converts a map[string]interface{} to a struct using JSON unmarshaling.
func mapToStruct(dataMap map[string]interface{}, target interface{}) error {
	bytes, err := json.Marshal(dataMap)
	if err != nil {
		return err
	}
	return json.Unmarshal(bytes, target)
}
