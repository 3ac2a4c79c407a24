package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"
)

func main() {
	server := flag.String("server", "http://localhost:8080", "Field engine server URL")
	fieldID := flag.String("field", "default", "Field id to operate on")
	flag.Parse()

	fmt.Println("Field Engine CLI")
	fmt.Printf("Server: %s | Field: %s\n", *server, *fieldID)
	fmt.Println("Type 'exit' or 'quit' to leave. Plain text injects a pattern.")
	fmt.Println("Commands: /fields, /status, /attractors, /decay, /repair, /run <protocol>, /save")
	fmt.Println("---")

	ensureField(*server, *fieldID)

	scanner := bufio.NewScanner(os.Stdin)
	for {
		fmt.Print("\n> ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			fmt.Println("Bye!")
			return
		}
		switch {
		case input == "/fields":
			get(*server, "/api/fields")
		case input == "/status":
			get(*server, "/api/fields/"+*fieldID+"/metrics")
		case input == "/attractors":
			get(*server, "/api/fields/"+*fieldID+"/attractors")
		case input == "/decay":
			post(*server, "/api/fields/"+*fieldID+"/decay", nil)
		case input == "/repair":
			post(*server, "/api/fields/"+*fieldID+"/repair", nil)
		case input == "/save":
			post(*server, "/api/fields/"+*fieldID+"/save", nil)
		case strings.HasPrefix(input, "/run "):
			name := strings.TrimSpace(strings.TrimPrefix(input, "/run "))
			post(*server, "/api/fields/"+*fieldID+"/protocols/"+name, map[string]interface{}{})
		default:
			inject(*server, *fieldID, input)
		}
	}
}

// ensureField creates the working field if it does not exist yet.
func ensureField(server, fieldID string) {
	resp, err := http.Get(server + "/api/fields/" + fieldID)
	if err != nil {
		printError("Server unreachable: %v", err)
		return
	}
	resp.Body.Close()
	if resp.StatusCode == http.StatusOK {
		return
	}
	post(server, "/api/fields", map[string]string{"id": fieldID})
}

func inject(server, fieldID, content string) {
	body, _ := json.Marshal(map[string]interface{}{
		"content":  content,
		"strength": 1.0,
	})

	client := &http.Client{Timeout: 65 * time.Second}
	resp, err := client.Post(
		server+"/api/fields/"+fieldID+"/patterns",
		"application/json",
		bytes.NewReader(body),
	)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var p struct {
		ID       string  `json:"id"`
		Strength float64 `json:"strength"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&p); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}
	fmt.Printf("\033[36m[%s]\033[0m injected at strength %.2f\n", p.ID, p.Strength)
}

func get(server, path string) {
	resp, err := http.Get(server + path)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	printBody(resp)
}

func post(server, path string, payload interface{}) {
	var body io.Reader
	if payload != nil {
		data, _ := json.Marshal(payload)
		body = bytes.NewReader(data)
	}
	client := &http.Client{Timeout: 65 * time.Second}
	resp, err := client.Post(server+path, "application/json", body)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()
	printBody(resp)
}

func printBody(resp *http.Response) {
	data, _ := io.ReadAll(resp.Body)
	var pretty bytes.Buffer
	if json.Indent(&pretty, data, "", "  ") == nil {
		data = pretty.Bytes()
	}
	if resp.StatusCode >= 300 {
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}
	fmt.Println(string(data))
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
