package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
)

var (
	baseURL string
	timeout time.Duration
	userID  string
)

func main() {
	rootCmd := &cobra.Command{
		Use:   "metering-cli",
		Short: "Metering CLI tool",
		Long:  `A command line interface for inspecting the metering core over its HTTP API.`,
	}

	rootCmd.PersistentFlags().StringVar(&baseURL, "url", "http://localhost:8080", "Base URL of the metering API")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 10*time.Second, "Request timeout")
	rootCmd.PersistentFlags().StringVar(&userID, "user", "", "User ID sent as X-User-ID")

	// Ledger commands
	ledgerCmd := &cobra.Command{
		Use:   "ledger",
		Short: "Ledger operations",
	}

	trialBalanceCmd := &cobra.Command{
		Use:   "trial-balance",
		Short: "Print the trial balance",
		Run: func(cmd *cobra.Command, args []string) {
			getJSON("/api/v1/ledger/trial-balance")
		},
	}

	initAccountsCmd := &cobra.Command{
		Use:   "init-accounts",
		Short: "Create missing system accounts",
		Run: func(cmd *cobra.Command, args []string) {
			postJSON("/api/v1/ledger/initialize-accounts", nil)
		},
	}

	accountBalanceCmd := &cobra.Command{
		Use:   "account-balance [code]",
		Short: "Print one account's balance",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			getJSON("/api/v1/ledger/accounts/" + args[0] + "/balance")
		},
	}

	ledgerCmd.AddCommand(trialBalanceCmd, initAccountsCmd, accountBalanceCmd)
	rootCmd.AddCommand(ledgerCmd)

	// Wallet commands
	walletCmd := &cobra.Command{
		Use:   "wallet",
		Short: "Wallet operations",
	}

	balanceCmd := &cobra.Command{
		Use:   "balance",
		Short: "Print a user's wallet balance",
		Run: func(cmd *cobra.Command, args []string) {
			requireUser()
			getJSON("/api/v1/wallet/balance")
		},
	}

	var description string
	creditCmd := &cobra.Command{
		Use:   "credit [amount]",
		Short: "Add credits to a user's wallet",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			requireUser()
			postJSON("/api/v1/wallet/credits/add", map[string]string{
				"amount":      args[0],
				"description": description,
			})
		},
	}
	creditCmd.Flags().StringVar(&description, "description", "manual top-up", "Transaction description")

	historyCmd := &cobra.Command{
		Use:   "history",
		Short: "Print a user's wallet transaction history",
		Run: func(cmd *cobra.Command, args []string) {
			requireUser()
			getJSON("/api/v1/wallet/transactions")
		},
	}

	walletCmd.AddCommand(balanceCmd, creditCmd, historyCmd)
	rootCmd.AddCommand(walletCmd)

	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}

func requireUser() {
	if userID == "" {
		fmt.Println("--user is required for wallet commands")
		os.Exit(1)
	}
}

func getJSON(path string) {
	req, err := http.NewRequest(http.MethodGet, baseURL+path, nil)
	if err != nil {
		fmt.Printf("Error building request: %v\n", err)
		os.Exit(1)
	}

	doRequest(req)
}

func postJSON(path string, body any) {
	var reader io.Reader
	if body != nil {
		payload, err := json.Marshal(body)
		if err != nil {
			fmt.Printf("Error encoding request: %v\n", err)
			os.Exit(1)
		}
		reader = bytes.NewReader(payload)
	}

	req, err := http.NewRequest(http.MethodPost, baseURL+path, reader)
	if err != nil {
		fmt.Printf("Error building request: %v\n", err)
		os.Exit(1)
	}
	req.Header.Set("Content-Type", "application/json")

	doRequest(req)
}

func doRequest(req *http.Request) {
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}

	client := &http.Client{Timeout: timeout}
	resp, err := client.Do(req)
	if err != nil {
		fmt.Printf("Error making request: %v\n", err)
		os.Exit(1)
	}
	defer resp.Body.Close()

	body, _ := io.ReadAll(resp.Body)

	if resp.StatusCode >= 400 {
		fmt.Printf("Request FAILED (Status: %d)\nResponse: %s\n", resp.StatusCode, string(body))
		os.Exit(1)
	}

	var pretty bytes.Buffer
	if err := json.Indent(&pretty, body, "", "  "); err != nil {
		fmt.Println(string(body))
		return
	}

	fmt.Println(pretty.String())
}
