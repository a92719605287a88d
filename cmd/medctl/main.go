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
	server := flag.String("server", "http://localhost:3210", "medquery server URL")
	flag.Parse()

	fmt.Println("medquery CLI")
	fmt.Printf("Server: %s\n", *server)
	fmt.Println("Type a medical question, or 'exit' to leave.")
	fmt.Println("Commands: /health, /patients, /tools, /enable <tool>, /disable <tool>")
	fmt.Println("---")

	fetchHealth(*server)

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
		case input == "/health":
			fetchHealth(*server)
		case input == "/patients":
			fetchPatients(*server)
		case input == "/tools":
			fetchTools(*server)
		case strings.HasPrefix(input, "/enable "):
			setEnabled(*server, strings.TrimPrefix(input, "/enable "), true)
		case strings.HasPrefix(input, "/disable "):
			setEnabled(*server, strings.TrimPrefix(input, "/disable "), false)
		default:
			askQuestion(*server, input)
		}
	}
}

func fetchHealth(server string) {
	resp, err := http.Get(server + "/api/health")
	if err != nil {
		printError("Failed to fetch health: %v", err)
		return
	}
	defer resp.Body.Close()

	var health struct {
		Status   string `json:"status"`
		Ready    bool   `json:"ready"`
		Provider string `json:"provider"`
		Patients int    `json:"patients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		printError("Failed to parse health: %v", err)
		return
	}
	icon := "\033[31m✗\033[0m"
	if health.Ready {
		icon = "\033[32m✓\033[0m"
	}
	fmt.Printf("%s %s | provider: %s | patients: %d\n",
		icon, health.Status, health.Provider, health.Patients)
}

func fetchPatients(server string) {
	resp, err := http.Get(server + "/api/patients")
	if err != nil {
		printError("Failed to fetch patients: %v", err)
		return
	}
	defer resp.Body.Close()

	var patients []struct {
		ID        string `json:"id"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
		Age       int    `json:"age"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&patients); err != nil {
		printError("Failed to parse patients: %v", err)
		return
	}
	if len(patients) == 0 {
		fmt.Println("No patients loaded.")
		return
	}
	fmt.Println("Patients:")
	for _, p := range patients {
		fmt.Printf("  %s %s (%s, age %d)\n", p.FirstName, p.LastName, p.ID, p.Age)
	}
}

func fetchTools(server string) {
	resp, err := http.Get(server + "/api/tools?include_disabled=1")
	if err != nil {
		printError("Failed to fetch tools: %v", err)
		return
	}
	defer resp.Body.Close()

	var tools []struct {
		Name      string `json:"name"`
		Category  string `json:"category"`
		Enabled   bool   `json:"enabled"`
		RateLimit int    `json:"rate_limit"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&tools); err != nil {
		printError("Failed to parse tools: %v", err)
		return
	}
	fmt.Println("Tools:")
	for _, t := range tools {
		icon := "\033[31m✗\033[0m"
		if t.Enabled {
			icon = "\033[32m✓\033[0m"
		}
		fmt.Printf("  %s %s [%s] %d/min\n", icon, t.Name, t.Category, t.RateLimit)
	}
}

func setEnabled(server, tool string, enabled bool) {
	body, _ := json.Marshal(map[string]bool{"enabled": enabled})
	req, err := http.NewRequest(http.MethodPut,
		server+"/api/tools/"+strings.TrimSpace(tool)+"/enabled", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}
	state := "disabled"
	if enabled {
		state = "enabled"
	}
	fmt.Printf("Tool %s %s.\n", strings.TrimSpace(tool), state)
}

func askQuestion(server, question string) {
	body, _ := json.Marshal(map[string]string{"question": question})

	client := &http.Client{Timeout: 65 * time.Second}
	resp, err := client.Post(server+"/api/query", "application/json", bytes.NewReader(body))
	if err != nil {
		printError("Request failed: %v", err)
		return
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		data, _ := io.ReadAll(resp.Body)
		printError("Server error (%d): %s", resp.StatusCode, string(data))
		return
	}

	var env struct {
		Kind     string `json:"kind"`
		Patient  string `json:"patient"`
		Answer   string `json:"answer"`
		Degraded bool   `json:"degraded"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&env); err != nil {
		printError("Failed to parse response: %v", err)
		return
	}

	if env.Patient != "" {
		fmt.Printf("\033[36m[%s]\033[0m ", env.Patient)
	}
	fmt.Println(env.Answer)
	if env.Degraded {
		fmt.Println("\033[33m(degraded: model backend unavailable)\033[0m")
	}
}

func printError(format string, args ...interface{}) {
	fmt.Fprintf(os.Stderr, "\033[31m"+format+"\033[0m\n", args...)
}
