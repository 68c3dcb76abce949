package agent

import (
	"strings"
	"testing"
)

const sampleStream = `event: message_start
data: {"type":"message_start"}

event: content_block_start
data: {"type":"content_block_start","index":0,"content_block":{"type":"text","text":""}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"Hel"}}

event: content_block_delta
data: {"type":"content_block_delta","index":0,"delta":{"type":"text_delta","text":"lo"}}

event: content_block_stop
data: {"type":"content_block_stop","index":0}

event: content_block_start
data: {"type":"content_block_start","index":1,"content_block":{"type":"tool_use","id":"toolu_01","name":"create_file","input":{}}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"{\"name\":"}}

event: content_block_delta
data: {"type":"content_block_delta","index":1,"delta":{"type":"input_json_delta","partial_json":"\"a.txt\",\"content\":\"hi\"}"}}

event: content_block_stop
data: {"type":"content_block_stop","index":1}

event: message_delta
data: {"type":"message_delta","delta":{"type":"message_delta","stop_reason":"tool_use"}}

event: message_stop
data: {"type":"message_stop"}
`

func TestParseStreamAssemblesTurn(t *testing.T) {
	var deltas []string
	turn, err := parseStream(strings.NewReader(sampleStream), func(d string) {
		deltas = append(deltas, d)
	})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if got := strings.Join(deltas, ""); got != "Hello" {
		t.Errorf("deltas = %q, want Hello", got)
	}
	if turn.Text() != "Hello" {
		t.Errorf("turn text = %q, want Hello", turn.Text())
	}
	if turn.StopReason != "tool_use" {
		t.Errorf("stop reason = %q, want tool_use", turn.StopReason)
	}

	calls := turn.ToolCalls()
	if len(calls) != 1 {
		t.Fatalf("tool calls = %d, want 1", len(calls))
	}
	call := calls[0]
	if call.ID != "toolu_01" || call.Name != "create_file" {
		t.Errorf("call = %s/%s, want toolu_01/create_file", call.ID, call.Name)
	}
	if call.Input["name"] != "a.txt" || call.Input["content"] != "hi" {
		t.Errorf("input = %v, want assembled partial json", call.Input)
	}
}

func TestParseStreamDeltasArriveInOrder(t *testing.T) {
	var deltas []string
	if _, err := parseStream(strings.NewReader(sampleStream), func(d string) {
		deltas = append(deltas, d)
	}); err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(deltas) != 2 || deltas[0] != "Hel" || deltas[1] != "lo" {
		t.Errorf("deltas = %v, want [Hel lo] in arrival order", deltas)
	}
}

func TestParseStreamErrorEvent(t *testing.T) {
	stream := `event: error
data: {"type":"error","error":{"type":"overloaded_error","message":"Overloaded"}}
`
	if _, err := parseStream(strings.NewReader(stream), nil); err == nil {
		t.Fatal("expected error event to fail the turn")
	}
}
