package ai

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

type sample struct {
	Name  string `json:"name"`
	Count int    `json:"count"`
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		in      string
		want    sample
		success bool
	}{
		{"direct", `{"name":"a","count":1}`, sample{"a", 1}, true},
		{"json fence", "```json\n{\"name\":\"b\",\"count\":2}\n```", sample{"b", 2}, true},
		{"bare fence", "```\n{\"name\":\"c\",\"count\":3}\n```", sample{"c", 3}, true},
		{"fence inside prose", "Sure!\n```json\n{\"name\":\"d\",\"count\":4}\n```\nHope that helps.", sample{"d", 4}, true},
		{"trailing comma", `{"name":"e","count":5,}`, sample{"e", 5}, true},
		{"comments", "{\n  // the name\n  \"name\": \"f\",\n  /* n */ \"count\": 6\n}", sample{"f", 6}, true},
		{"surrounding prose", `The answer is {"name":"g","count":7} as requested.`, sample{"g", 7}, true},
		{"apostrophe survives", `{"name":"it's fine","count":8}`, sample{"it's fine", 8}, true},
		{"url survives", `{"name":"https://example.com/x","count":9}`, sample{"https://example.com/x", 9}, true},
		{"empty", "   ", sample{}, false},
		{"garbage", "no json here", sample{}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := Parse[sample](tt.in)
			assert.Equal(t, tt.success, result.Success, result.Error)
			if tt.success {
				assert.Equal(t, tt.want, result.Data)
			} else {
				assert.NotEmpty(t, result.Error)
			}
		})
	}
}
