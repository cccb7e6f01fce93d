package graph

import (
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
)

// ============================================================================
// Record Helper Functions
// ============================================================================

func getStringFromRecord(record *neo4j.Record, key string) string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return ""
	}
	if str, ok := val.(string); ok {
		return str
	}
	return ""
}

func getInt64FromRecord(record *neo4j.Record, key string) int64 {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return 0
	}
	if i, ok := val.(int64); ok {
		return i
	}
	if i, ok := val.(int); ok {
		return int64(i)
	}
	return 0
}

func getTimeFromRecord(record *neo4j.Record, key string) time.Time {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return time.Time{}
	}
	// Neo4j datetime values come back as time.Time
	if t, ok := val.(time.Time); ok {
		return t
	}
	if str, ok := val.(string); ok {
		if t, err := time.Parse(time.RFC3339, str); err == nil {
			return t
		}
	}
	return time.Time{}
}

func getStringSliceFromRecord(record *neo4j.Record, key string) []string {
	val, ok := record.Get(key)
	if !ok || val == nil {
		return []string{}
	}
	if slice, ok := val.([]interface{}); ok {
		result := make([]string, 0, len(slice))
		for _, v := range slice {
			if str, ok := v.(string); ok {
				result = append(result, str)
			}
		}
		return result
	}
	return []string{}
}

// Exported variants used by the maintenance and ledger packages when they
// parse records from Store.ReadQuery.

// StringFrom reads a string column from a record
func StringFrom(record *neo4j.Record, key string) string {
	return getStringFromRecord(record, key)
}

// Int64From reads an integer column from a record
func Int64From(record *neo4j.Record, key string) int64 {
	return getInt64FromRecord(record, key)
}

// TimeFrom reads a datetime column from a record
func TimeFrom(record *neo4j.Record, key string) time.Time {
	return getTimeFromRecord(record, key)
}

// StringSliceFrom reads a list-of-strings column from a record
func StringSliceFrom(record *neo4j.Record, key string) []string {
	return getStringSliceFromRecord(record, key)
}
