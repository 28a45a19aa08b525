// Command schema-registry-cli is an operator tool for a running
// registry: list subjects, inspect versions, register schemas, and
// flip compatibility/mode settings over the REST API. Grounded on
// srctl's cobra command layout (one file per subcommand, flags bound
// per-command, a shared HTTP client built from a root --addr flag).
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

var addr string

var rootCmd = &cobra.Command{
	Use:   "schema-registry-cli",
	Short: "Operate on a running schema registry",
}

func init() {
	rootCmd.PersistentFlags().StringVar(&addr, "addr", "http://localhost:8081", "registry HTTP address")
	rootCmd.AddCommand(subjectsCmd, versionsCmd, getCmd, registerCmd, deleteCmd, compatCmd, configCmd, modeCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var httpClient = &http.Client{Timeout: 15 * time.Second}

func call(method, path string, body any) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		buf, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		reader = bytes.NewReader(buf)
	}
	req, err := http.NewRequest(method, strings.TrimRight(addr, "/")+path, reader)
	if err != nil {
		return nil, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	out, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode >= 400 {
		return nil, fmt.Errorf("registry: %s %s: %s", method, path, out)
	}
	return out, nil
}

func printJSON(raw []byte) {
	var v any
	if err := json.Unmarshal(raw, &v); err != nil {
		fmt.Println(string(raw))
		return
	}
	pretty, _ := json.MarshalIndent(v, "", "  ")
	fmt.Println(string(pretty))
}

var subjectsCmd = &cobra.Command{
	Use:   "subjects",
	Short: "List all subjects",
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := call(http.MethodGet, "/subjects", nil)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var versionsCmd = &cobra.Command{
	Use:   "versions <subject>",
	Short: "List a subject's versions",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := call(http.MethodGet, fmt.Sprintf("/subjects/%s/versions", args[0]), nil)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

var getVersionFlag string

var getCmd = &cobra.Command{
	Use:   "get <subject>",
	Short: "Fetch one version of a subject's schema (default latest)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		out, err := call(http.MethodGet, fmt.Sprintf("/subjects/%s/versions/%s", args[0], getVersionFlag), nil)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	getCmd.Flags().StringVar(&getVersionFlag, "version", "latest", "version to fetch")
}

var (
	registerFile string
	registerType string
)

var registerCmd = &cobra.Command{
	Use:   "register <subject>",
	Short: "Register a new schema version",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content []byte
		var err error
		if registerFile != "" {
			content, err = os.ReadFile(registerFile)
		} else {
			content, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		body := map[string]any{"schema": string(content)}
		if registerType != "" {
			body["schemaType"] = registerType
		}
		out, err := call(http.MethodPost, fmt.Sprintf("/subjects/%s/versions", args[0]), body)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	registerCmd.Flags().StringVarP(&registerFile, "file", "f", "", "path to schema file (default: stdin)")
	registerCmd.Flags().StringVarP(&registerType, "type", "t", "", "AVRO, JSON, or PROTOBUF (default AVRO)")
}

var deletePermanent bool

var deleteCmd = &cobra.Command{
	Use:   "delete <subject> [version]",
	Short: "Delete a subject, or one version of it",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 2 {
			out, err := call(http.MethodDelete, fmt.Sprintf("/subjects/%s/versions/%s", args[0], args[1]), nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		}
		path := fmt.Sprintf("/subjects/%s", args[0])
		if deletePermanent {
			path += "?permanent=true"
		}
		out, err := call(http.MethodDelete, path, nil)
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	deleteCmd.Flags().BoolVar(&deletePermanent, "permanent", false, "hard-delete every version of a subject that was already soft-deleted")
}

var compatFile string

var compatCmd = &cobra.Command{
	Use:   "compatibility <subject> <version>",
	Short: "Check a candidate schema against the subject's compatibility check set (the version argument is sent but not used by the server)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		var content []byte
		var err error
		if compatFile != "" {
			content, err = os.ReadFile(compatFile)
		} else {
			content, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read schema: %w", err)
		}
		out, err := call(http.MethodPost, fmt.Sprintf("/compatibility/subjects/%s/versions/%s", args[0], args[1]),
			map[string]any{"schema": string(content)})
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	compatCmd.Flags().StringVarP(&compatFile, "file", "f", "", "path to candidate schema file (default: stdin)")
}

var configLevel string

var configCmd = &cobra.Command{
	Use:   "config [subject]",
	Short: "Get or set a compatibility level",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/config"
		if len(args) == 1 {
			path = fmt.Sprintf("/config/%s", args[0])
		}
		if configLevel == "" {
			out, err := call(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		}
		out, err := call(http.MethodPut, path, map[string]any{"compatibility": configLevel})
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	configCmd.Flags().StringVar(&configLevel, "set", "", "set the compatibility level instead of reading it")
}

var modeValue string

var modeCmd = &cobra.Command{
	Use:   "mode [subject]",
	Short: "Get or set a subject's (or global) mode",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := "/mode"
		if len(args) == 1 {
			path = fmt.Sprintf("/mode/%s", args[0])
		}
		if modeValue == "" {
			out, err := call(http.MethodGet, path, nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		}
		out, err := call(http.MethodPut, path, map[string]any{"mode": modeValue})
		if err != nil {
			return err
		}
		printJSON(out)
		return nil
	},
}

func init() {
	modeCmd.Flags().StringVar(&modeValue, "set", "", "READWRITE, READONLY, or IMPORT")
}
