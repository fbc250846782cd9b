package main

import (
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"text/tabwriter"
	"time"

	"github.com/meshline/meshcore/internal/protocol"
)

var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cmd := os.Args[1]
	os.Args = append(os.Args[:1], os.Args[2:]...)

	switch cmd {
	case "login":
		cmdLogin()
	case "relay-config":
		cmdRelayConfig()
	case "relay-stats":
		cmdRelayStats()
	case "queue-stats":
		cmdQueueStats()
	case "contacts":
		cmdContacts()
	case "trust":
		cmdTrust()
	case "send":
		cmdSend()
	case "version":
		fmt.Printf("meshadmin %s\n", version)
	case "help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Println(`Usage: meshadmin <command> [options]

Commands:
  login         Authenticate against a node's admin API, print a token
  relay-config  Show or update relay tunables
  relay-stats   Show relay engine statistics
  queue-stats   Show offline queue statistics
  contacts      List contacts, or show one by ID
  trust         Set a contact's trust status
  send          Enqueue a message to a contact
  version       Show version
  help          Show this help`)
}

// --- Login ---

func cmdLogin() {
	fs := flag.NewFlagSet("login", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	username := fs.String("username", "admin", "admin username")
	password := fs.String("password", "", "admin password")
	fs.Parse(os.Args[1:])

	client := &apiClient{base: *node}
	var resp protocol.LoginResponse
	body := protocol.LoginRequest{Username: *username, Password: *password}
	if err := client.post("/api/v1/auth/login", body, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.Token)
}

// --- Relay config ---

func cmdRelayConfig() {
	fs := flag.NewFlagSet("relay-config", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	token := fs.String("token", "", "admin session token")
	enabled := fs.String("enabled", "", "enable or disable relaying: true/false")
	maxHops := fs.Int("max-hops", -1, "set max relay hops (-1 to leave unchanged)")
	battery := fs.Int("battery-threshold", -1, "set battery threshold percent (-1 to leave unchanged)")
	fs.Parse(os.Args[1:])

	client := &apiClient{base: *node, token: *token}

	if *enabled == "" && *maxHops < 0 && *battery < 0 {
		var summary json.RawMessage
		if err := client.get("/api/v1/relay/config", &summary); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		printJSON(summary)
		return
	}

	req := protocol.RelayConfigUpdateRequest{}
	if *enabled != "" {
		v := *enabled == "true"
		req.Enabled = &v
	}
	if *maxHops >= 0 {
		req.MaxRelayHops = maxHops
	}
	if *battery >= 0 {
		req.BatteryThreshold = battery
	}
	var summary json.RawMessage
	if err := client.put("/api/v1/relay/config", req, &summary); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printJSON(summary)
}

func cmdRelayStats() {
	fs := flag.NewFlagSet("relay-stats", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	token := fs.String("token", "", "admin session token")
	fs.Parse(os.Args[1:])

	client := &apiClient{base: *node, token: *token}
	var stats json.RawMessage
	if err := client.get("/api/v1/relay/stats", &stats); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printJSON(stats)
}

func cmdQueueStats() {
	fs := flag.NewFlagSet("queue-stats", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	token := fs.String("token", "", "admin session token")
	fs.Parse(os.Args[1:])

	client := &apiClient{base: *node, token: *token}
	var stats json.RawMessage
	if err := client.get("/api/v1/queue/stats", &stats); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	printJSON(stats)
}

// --- Contacts ---

func cmdContacts() {
	fs := flag.NewFlagSet("contacts", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	token := fs.String("token", "", "admin session token")
	id := fs.String("id", "", "show a single contact by ephemeral ID")
	fs.Parse(os.Args[1:])

	client := &apiClient{base: *node, token: *token}

	if *id != "" {
		var ct protocol.ContactView
		if err := client.get("/api/v1/contacts/"+*id, &ct); err != nil {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
			os.Exit(1)
		}
		fmt.Printf("ID:             %s\n", ct.EphemeralID)
		fmt.Printf("Display name:   %s\n", ct.DisplayName)
		fmt.Printf("Trust status:   %s\n", ct.TrustStatus)
		fmt.Printf("Security level: %s\n", ct.SecurityLevel)
		fmt.Printf("Session state:  %s\n", ct.SessionState)
		fmt.Printf("First seen:     %s\n", ct.FirstSeen.Format(time.RFC3339))
		fmt.Printf("Last seen:      %s\n", ct.LastSeen.Format(time.RFC3339))
		return
	}

	var contacts []protocol.ContactView
	if err := client.get("/api/v1/contacts", &contacts); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tTRUST\tSECURITY\tSESSION\tLAST SEEN")
	for _, ct := range contacts {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\n",
			ct.EphemeralID, ct.DisplayName, ct.TrustStatus, ct.SecurityLevel,
			ct.SessionState, ct.LastSeen.Format(time.RFC3339))
	}
	w.Flush()
}

func cmdTrust() {
	fs := flag.NewFlagSet("trust", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	token := fs.String("token", "", "admin session token")
	id := fs.String("id", "", "contact ephemeral ID")
	status := fs.String("status", "", "trust status: unknown, verified, revoked")
	fs.Parse(os.Args[1:])

	if *id == "" || *status == "" {
		fmt.Fprintln(os.Stderr, "error: -id and -status are required")
		os.Exit(1)
	}

	client := &apiClient{base: *node, token: *token}
	body := struct {
		TrustStatus string `json:"trust_status"`
	}{TrustStatus: *status}
	if err := client.put("/api/v1/contacts/"+*id+"/trust", body, nil); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("ok")
}

// --- Send ---

func cmdSend() {
	fs := flag.NewFlagSet("send", flag.ExitOnError)
	node := fs.String("node", "http://127.0.0.1:9394", "node admin API URL")
	token := fs.String("token", "", "admin session token")
	chatID := fs.String("chat", "", "chat ID")
	recipient := fs.String("to", "", "recipient public key (hex)")
	text := fs.String("text", "", "message text")
	priority := fs.Int("priority", 1, "delivery priority (0=low, 1=normal, 2=high, 3=urgent)")
	fs.Parse(os.Args[1:])

	if *recipient == "" || *text == "" {
		fmt.Fprintln(os.Stderr, "error: -to and -text are required")
		os.Exit(1)
	}

	client := &apiClient{base: *node, token: *token}
	body := struct {
		ChatID      string `json:"chat_id"`
		RecipientPK string `json:"recipient_public_key"`
		Content     []byte `json:"content"`
		Priority    int    `json:"priority"`
	}{ChatID: *chatID, RecipientPK: *recipient, Content: []byte(*text), Priority: *priority}

	var resp struct {
		MessageID string `json:"message_id"`
	}
	if err := client.post("/api/v1/messages", body, &resp); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(resp.MessageID)
}

func printJSON(raw json.RawMessage) {
	var buf bytes.Buffer
	if err := json.Indent(&buf, raw, "", "  "); err != nil {
		fmt.Println(string(raw))
		return
	}
	fmt.Println(buf.String())
}

// --- HTTP client helper ---

type apiClient struct {
	base  string
	token string
}

func (c *apiClient) do(method, path string, body, out interface{}) error {
	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return err
		}
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, c.base+path, reader)
	if err != nil {
		return err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 400 {
		respBody, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("HTTP %d: %s", resp.StatusCode, string(respBody))
	}
	if out != nil {
		return json.NewDecoder(resp.Body).Decode(out)
	}
	return nil
}

func (c *apiClient) get(path string, out interface{}) error        { return c.do("GET", path, nil, out) }
func (c *apiClient) post(path string, body, out interface{}) error { return c.do("POST", path, body, out) }
func (c *apiClient) put(path string, body, out interface{}) error  { return c.do("PUT", path, body, out) }
