package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/haasonsaas/loom/internal/config"
)

func TestBuildRootCmdIncludesSubcommands(t *testing.T) {
	cmd := buildRootCmd()
	names := map[string]bool{}
	for _, sub := range cmd.Commands() {
		names[sub.Name()] = true
	}
	for _, name := range []string{"run", "health"} {
		if !names[name] {
			t.Fatalf("expected subcommand %q to be registered", name)
		}
	}
}

func TestWireRuntime_ProducesUsableComponents(t *testing.T) {
	rt := config.DefaultRuntime()
	rt.Workspace = t.TempDir()
	rt.SinkPath = rt.Workspace + "/diagnostic.jsonl"

	rtimeComponents, err := wireRuntime(rt, stubProvider{})
	if err != nil {
		t.Fatalf("wireRuntime() error: %v", err)
	}
	defer rtimeComponents.close()

	if rtimeComponents.dispatcher == nil {
		t.Fatal("dispatcher is nil")
	}
	if rtimeComponents.bus == nil {
		t.Fatal("bus is nil")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	snap := rtimeComponents.health.Collect(ctx)
	if len(snap.Evidence) == 0 {
		t.Error("health snapshot has no evidence, want at least workspace+provider+queue")
	}
}

func TestStubProvider_EchoesLastUserMessage(t *testing.T) {
	resp, err := stubProvider{}.Chat(context.Background(), nil, nil, "", 0, 0)
	if err != nil {
		t.Fatalf("Chat() error: %v", err)
	}
	if resp.Content == "" {
		t.Error("Content is empty, want a placeholder response")
	}
}

func TestHealthCmd_PrintsJSONSnapshot(t *testing.T) {
	cmd := buildHealthCmd()
	cmd.SetArgs([]string{"--workspace", t.TempDir()})
	var out bytes.Buffer
	cmd.SetOut(&out)

	// Readiness will be non-ok (stub provider has no real credentials to
	// assert, but ProviderProber only checks wiring so this still passes);
	// what this test asserts is that JSON comes out, not that the process
	// reports ready.
	_ = cmd.Execute()

	var snap map[string]any
	if err := json.Unmarshal(out.Bytes(), &snap); err != nil {
		t.Fatalf("output is not valid JSON: %v\n%s", err, out.String())
	}
	if _, ok := snap["evidence"]; !ok {
		t.Error("snapshot JSON missing \"evidence\" key")
	}
}
