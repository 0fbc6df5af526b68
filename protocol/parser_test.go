package protocol

import "testing"

func feedAll(t *testing.T, p *Parser, line string) (Command, int) {
	t.Helper()
	buf := []byte(line)
	n, done, err := p.Feed(buf)
	if err != nil {
		t.Fatalf("Feed(%q): unexpected error: %v", line, err)
	}
	if !done {
		t.Fatalf("Feed(%q): expected done=true", line)
	}
	if n != len(buf) {
		t.Fatalf("Feed(%q): expected to consume %d bytes, consumed %d", line, len(buf), n)
	}
	return p.Build()
}

func TestParseSet(t *testing.T) {
	var p Parser
	cmd, bulk := feedAll(t, &p, "set foo 0 0 3\r\n")
	if cmd.Kind != KindSet {
		t.Fatalf("expected KindSet, got %v", cmd.Kind)
	}
	if cmd.Key != "foo" || cmd.Flags != 0 || cmd.Exptime != 0 {
		t.Fatalf("unexpected fields: %+v", cmd)
	}
	if bulk != 3 {
		t.Fatalf("expected bulk_size 3, got %d", bulk)
	}
}

func TestParseAddReplaceAppendPrepend(t *testing.T) {
	cases := []struct {
		line string
		kind Kind
	}{
		{"add k 1 2 5\r\n", KindAdd},
		{"replace k 1 2 5\r\n", KindReplace},
		{"append k 1 2 5\r\n", KindAppend},
		{"prepend k 1 2 5\r\n", KindPrepend},
	}
	for _, c := range cases {
		var p Parser
		cmd, bulk := feedAll(t, &p, c.line)
		if cmd.Kind != c.kind {
			t.Fatalf("%q: expected kind %v, got %v", c.line, c.kind, cmd.Kind)
		}
		if cmd.Key != "k" || cmd.Flags != 1 || cmd.Exptime != 2 || bulk != 5 {
			t.Fatalf("%q: unexpected fields: %+v bulk=%d", c.line, cmd, bulk)
		}
	}
}

func TestParseGetSingleKey(t *testing.T) {
	var p Parser
	cmd, bulk := feedAll(t, &p, "get foo\r\n")
	if cmd.Kind != KindGet {
		t.Fatalf("expected KindGet, got %v", cmd.Kind)
	}
	if len(cmd.Keys) != 1 || cmd.Keys[0] != "foo" {
		t.Fatalf("unexpected keys: %v", cmd.Keys)
	}
	if bulk != 0 {
		t.Fatalf("get must have bulk_size 0, got %d", bulk)
	}
}

func TestParseGetMultiKey(t *testing.T) {
	var p Parser
	cmd, _ := feedAll(t, &p, "get a b c\r\n")
	if cmd.Kind != KindGet {
		t.Fatalf("expected KindGet, got %v", cmd.Kind)
	}
	want := []string{"a", "b", "c"}
	if len(cmd.Keys) != len(want) {
		t.Fatalf("expected %d keys, got %v", len(want), cmd.Keys)
	}
	for i, k := range want {
		if cmd.Keys[i] != k {
			t.Fatalf("key %d: expected %q, got %q", i, k, cmd.Keys[i])
		}
	}
}

func TestParseGets(t *testing.T) {
	var p Parser
	cmd, _ := feedAll(t, &p, "gets foo bar\r\n")
	if cmd.Kind != KindGets {
		t.Fatalf("expected KindGets, got %v", cmd.Kind)
	}
	if len(cmd.Keys) != 2 {
		t.Fatalf("expected 2 keys, got %v", cmd.Keys)
	}
}

func TestParseDelete(t *testing.T) {
	var p Parser
	cmd, bulk := feedAll(t, &p, "delete foo\r\n")
	if cmd.Kind != KindDelete || cmd.Key != "foo" || bulk != 0 {
		t.Fatalf("unexpected result: %+v bulk=%d", cmd, bulk)
	}
}

func TestParseStats(t *testing.T) {
	var p Parser
	cmd, bulk := feedAll(t, &p, "stats\r\n")
	if cmd.Kind != KindStats || bulk != 0 {
		t.Fatalf("unexpected result: %+v bulk=%d", cmd, bulk)
	}
}

func TestParseUnknownCommand(t *testing.T) {
	var p Parser
	_, _, err := p.Feed([]byte("frobnicate foo\r\n"))
	if err == nil {
		t.Fatal("expected a parse error for an unrecognized command")
	}
}

func TestParseBadBytesField(t *testing.T) {
	var p Parser
	_, _, err := p.Feed([]byte("set foo 0 0 notanumber\r\n"))
	if err == nil {
		t.Fatal("expected a parse error for a non-numeric bytes field")
	}
}

func TestParseByteAtATime(t *testing.T) {
	var p Parser
	line := "set foo 0 0 3\r\n"
	var ready bool
	var cmd Command
	var bulk int
	for i := 0; i < len(line); i++ {
		n, done, err := p.Feed([]byte{line[i]})
		if err != nil {
			t.Fatalf("byte %d (%q): unexpected error: %v", i, line[i], err)
		}
		if n != 1 {
			t.Fatalf("byte %d: expected to consume exactly 1 byte, got %d", i, n)
		}
		if done {
			ready = true
			cmd, bulk = p.Build()
		}
	}
	if !ready {
		t.Fatal("expected the command to be ready after feeding the whole line one byte at a time")
	}
	if cmd.Kind != KindSet || cmd.Key != "foo" || bulk != 3 {
		t.Fatalf("unexpected result: %+v bulk=%d", cmd, bulk)
	}
}

func TestParseSplitAcrossFeedCalls(t *testing.T) {
	var p Parser

	n, done, err := p.Feed([]byte("se"))
	if err != nil || done || n != 2 {
		t.Fatalf("first chunk: n=%d done=%v err=%v", n, done, err)
	}

	n, done, err = p.Feed([]byte("t foo 0 0 "))
	if err != nil || done || n != 10 {
		t.Fatalf("second chunk: n=%d done=%v err=%v", n, done, err)
	}

	n, done, err = p.Feed([]byte("3\r\n"))
	if err != nil || !done || n != 3 {
		t.Fatalf("third chunk: n=%d done=%v err=%v", n, done, err)
	}

	cmd, bulk := p.Build()
	if cmd.Kind != KindSet || cmd.Key != "foo" || bulk != 3 {
		t.Fatalf("unexpected result after split feed: %+v bulk=%d", cmd, bulk)
	}
}

func TestParseResetsAfterCommand(t *testing.T) {
	var p Parser
	_, bulk1 := feedAll(t, &p, "get a\r\n")
	if bulk1 != 0 {
		t.Fatalf("expected bulk 0, got %d", bulk1)
	}
	cmd2, bulk2 := feedAll(t, &p, "set b 0 0 1\r\n")
	if cmd2.Kind != KindSet || cmd2.Key != "b" || bulk2 != 1 {
		t.Fatalf("parser state leaked across commands: %+v bulk=%d", cmd2, bulk2)
	}
}
