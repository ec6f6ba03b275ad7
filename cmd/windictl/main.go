// Command windictl is the operator CLI for the Governance Hold and
// Provenance surfaces: activate/release holds and verify provenance
// records against a running windi-bridge instance's HTTP API, replay
// an audit log offline, and emit a signed test signal.
package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/windi-project/windi-core/pkg/emitter"
	"github.com/windi-project/windi-core/pkg/registry"
	"github.com/windi-project/windi-core/pkg/replay"
)

func main() {
	os.Exit(Run(os.Args, os.Stdout, os.Stderr))
}

func Run(args []string, stdout, stderr io.Writer) int {
	if len(args) < 2 {
		printUsage(stdout)
		return 2
	}

	switch args[1] {
	case "hold":
		return runHoldCmd(args[2:], stdout, stderr)
	case "provenance":
		return runProvenanceCmd(args[2:], stdout, stderr)
	case "audit":
		return runAuditCmd(args[2:], stdout, stderr)
	case "emit":
		return runEmitCmd(args[2:], stdout, stderr)
	case "help", "--help", "-h":
		printUsage(stdout)
		return 0
	default:
		fmt.Fprintf(stderr, "unknown command: %s\n", args[1])
		printUsage(stderr)
		return 2
	}
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, "windictl - operate the Governance Hold and Provenance surfaces")
	fmt.Fprintln(w, "")
	fmt.Fprintln(w, "USAGE:")
	fmt.Fprintln(w, "  windictl hold activate --domain <id> --reason <text> --duration <go-duration> --token <jwt> [--server url]")
	fmt.Fprintln(w, "  windictl hold release  --hold-id <id> --reason <text> --token <jwt> [--server url]")
	fmt.Fprintln(w, "  windictl provenance verify --id <submission_id> [--server url]")
	fmt.Fprintln(w, "  windictl audit replay --file <chain_export.jsonl>")
	fmt.Fprintln(w, "  windictl emit --client-id <id> --key-id <kid> --secret <issuer_secret> --shelf <S1..S7> --code <code> --event <event> [--server url]")
}

func serverAddr(set *flag.FlagSet) *string {
	return set.String("server", envOr("WINDICTL_SERVER", "http://localhost:8080"), "windi-bridge base URL")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func runHoldCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 {
		fmt.Fprintln(stderr, "usage: windictl hold <activate|release> [flags]")
		return 2
	}

	switch args[0] {
	case "activate":
		return runHoldActivate(args[1:], stdout, stderr)
	case "release":
		return runHoldRelease(args[1:], stdout, stderr)
	default:
		fmt.Fprintf(stderr, "unknown hold subcommand: %s\n", args[0])
		return 2
	}
}

func runHoldActivate(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("hold activate", flag.ContinueOnError)
	set.SetOutput(stderr)
	server := serverAddr(set)
	domain := set.String("domain", "", "domain ID to hold (REQUIRED)")
	reason := set.String("reason", "", "activation reason (REQUIRED)")
	duration := set.Duration("duration", time.Hour, "hold duration")
	token := set.String("token", "", "bearer Virtue Token (REQUIRED)")
	if err := set.Parse(args); err != nil {
		return 2
	}
	if *domain == "" || *reason == "" || *token == "" {
		fmt.Fprintln(stderr, "error: --domain, --reason, and --token are required")
		return 2
	}

	body, _ := json.Marshal(map[string]interface{}{
		"domain_id":   *domain,
		"reason":      *reason,
		"duration_ms": duration.Milliseconds(),
	})
	return postJSON(stdout, stderr, *server+"/v1/holds/activate", *token, body)
}

func runHoldRelease(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("hold release", flag.ContinueOnError)
	set.SetOutput(stderr)
	server := serverAddr(set)
	holdID := set.String("hold-id", "", "hold ID to release (REQUIRED)")
	reason := set.String("reason", "", "release reason (REQUIRED)")
	token := set.String("token", "", "bearer Virtue Token (REQUIRED)")
	if err := set.Parse(args); err != nil {
		return 2
	}
	if *holdID == "" || *reason == "" || *token == "" {
		fmt.Fprintln(stderr, "error: --hold-id, --reason, and --token are required")
		return 2
	}

	body, _ := json.Marshal(map[string]interface{}{
		"hold_id": *holdID,
		"reason":  *reason,
	})
	return postJSON(stdout, stderr, *server+"/v1/holds/release", *token, body)
}

func runProvenanceCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "verify" {
		fmt.Fprintln(stderr, "usage: windictl provenance verify --id <submission_id>")
		return 2
	}

	set := flag.NewFlagSet("provenance verify", flag.ContinueOnError)
	set.SetOutput(stderr)
	server := serverAddr(set)
	id := set.String("id", "", "submission ID to verify (REQUIRED)")
	if err := set.Parse(args[1:]); err != nil {
		return 2
	}
	if *id == "" {
		fmt.Fprintln(stderr, "error: --id is required")
		return 2
	}

	resp, err := http.Get(*server + "/v1/provenance/verify?submission_id=" + *id)
	if err != nil {
		fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	return printResponse(stdout, stderr, resp)
}

// runAuditCmd replays an exported pkg/auditchain ledger offline — no
// windi-bridge connection needed, unlike hold/provenance.
func runAuditCmd(args []string, stdout, stderr io.Writer) int {
	if len(args) == 0 || args[0] != "replay" {
		fmt.Fprintln(stderr, "usage: windictl audit replay --file <chain_export.jsonl>")
		return 2
	}

	set := flag.NewFlagSet("audit replay", flag.ContinueOnError)
	set.SetOutput(stderr)
	file := set.String("file", "", "path to a JSONL export of auditchain.Record (REQUIRED)")
	if err := set.Parse(args[1:]); err != nil {
		return 2
	}
	if *file == "" {
		fmt.Fprintln(stderr, "error: --file is required")
		return 2
	}

	result, err := replay.FromFile(*file)
	if err != nil {
		fmt.Fprintf(stderr, "replay failed: %v\n", err)
		return 1
	}

	out, err := json.Marshal(result)
	if err != nil {
		fmt.Fprintf(stderr, "encode result: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(out))
	if !result.ValidChain {
		return 1
	}
	return 0
}

// runEmitCmd builds, signs, and POSTs one Micro-Signal packet via
// pkg/emitter — a smoke-test path that exercises the same signing and
// wire-encoding the real edge-side emitter uses, against a running
// windi-bridge's telemetry endpoint.
func runEmitCmd(args []string, stdout, stderr io.Writer) int {
	set := flag.NewFlagSet("emit", flag.ContinueOnError)
	set.SetOutput(stderr)
	server := serverAddr(set)
	clientID := set.String("client-id", "", "logical client ID (REQUIRED)")
	keyID := set.String("key-id", "", "HMAC key ID registered with the Bridge (REQUIRED)")
	secret := set.String("secret", envOr("WINDI_ISSUER_SECRET", ""), "issuer secret to derive the signing key from (REQUIRED unless --hmac-key is set)")
	hmacKey := set.String("hmac-key", "", "raw signing key, used verbatim as bytes, overrides --secret derivation")
	shelf := set.String("shelf", string(registry.ShelfIdentity), "governance shelf (S1..S7)")
	code := set.String("code", "", "registered signal code (REQUIRED)")
	event := set.String("event", "", "registered workflow event name (REQUIRED)")
	weight := set.Int("weight", 50, "signal weight, 0-100")
	domainID := set.String("domain-id", "", "domain identifier to hash into domain_hash")
	if err := set.Parse(args); err != nil {
		return 2
	}
	if *clientID == "" || *keyID == "" || *code == "" || *event == "" {
		fmt.Fprintln(stderr, "error: --client-id, --key-id, --code, and --event are required")
		return 2
	}
	if *secret == "" && *hmacKey == "" {
		fmt.Fprintln(stderr, "error: --secret or --hmac-key is required")
		return 2
	}

	cfg := emitter.Config{ClientID: *clientID, KeyID: *keyID}
	if *hmacKey != "" {
		cfg.HMACKey = []byte(*hmacKey)
	} else {
		cfg.IssuerSecret = []byte(*secret)
	}

	e, err := emitter.New(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "emitter init: %v\n", err)
		return 1
	}

	pkt, err := e.Emit(emitter.EventSpec{
		Shelf:    registry.Shelf(*shelf),
		Code:     *code,
		Weight:   *weight,
		DomainID: *domainID,
		Event:    *event,
	})
	if err != nil {
		fmt.Fprintf(stderr, "emit: %v\n", err)
		return 1
	}

	body, err := json.Marshal(pkt)
	if err != nil {
		fmt.Fprintf(stderr, "encode packet: %v\n", err)
		return 1
	}

	resp, err := http.Post(*server+"/api/v1/telemetry", "application/json", bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	return printResponse(stdout, stderr, resp)
}

func postJSON(stdout, stderr io.Writer, url, bearer string, body []byte) int {
	req, err := http.NewRequest(http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		fmt.Fprintf(stderr, "build request: %v\n", err)
		return 1
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+bearer)

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		fmt.Fprintf(stderr, "request failed: %v\n", err)
		return 1
	}
	defer func() { _ = resp.Body.Close() }()
	return printResponse(stdout, stderr, resp)
}

func printResponse(stdout, stderr io.Writer, resp *http.Response) int {
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		fmt.Fprintf(stderr, "read response: %v\n", err)
		return 1
	}
	fmt.Fprintln(stdout, string(data))
	if resp.StatusCode >= 400 {
		return 1
	}
	return 0
}
