package main

import (
	"encoding/json"
	"fmt"
	"net"
	"os"
)

func ipcCall(sock string, req IPCRequest) (IPCResponse, error) {
	conn, err := net.Dial("unix", sock)
	if err != nil {
		return IPCResponse{}, fmt.Errorf("connect to daemon: %w (is `policyd daemon` running?)", err)
	}
	defer conn.Close()

	if err := json.NewEncoder(conn).Encode(req); err != nil {
		return IPCResponse{}, fmt.Errorf("send request: %w", err)
	}

	var resp IPCResponse
	if err := json.NewDecoder(conn).Decode(&resp); err != nil {
		return IPCResponse{}, fmt.Errorf("read response: %w", err)
	}
	return resp, nil
}

// runCommand sends req and prints the response as JSON.
func runCommand(sock string, req IPCRequest) error {
	resp, err := ipcCall(sock, req)
	if err != nil {
		return err
	}
	if resp.Error != "" {
		return fmt.Errorf("%s", resp.Error)
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(resp)
}

func runStatus(sock string) error {
	return runCommand(sock, IPCRequest{Command: "status"})
}

func runSessions(sock string) error {
	return runCommand(sock, IPCRequest{Command: "sessions"})
}

func runJack(sock, capabilities string) error {
	return runCommand(sock, IPCRequest{Command: "jack", Capabilities: capabilities})
}
