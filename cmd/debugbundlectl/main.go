// Command debugbundlectl is a small operator CLI that drives the
// debug-bundle administrative HTTP surface directly, for use in
// development without a browser. It deliberately uses the standard
// library's flag package rather than a CLI framework: this is a single
// binary with five subcommands and no nested flag groups, the exact
// shape the stdlib flag package was built for.
package main

import (
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}

	fs := flag.NewFlagSet(os.Args[0], flag.ExitOnError)
	addr := fs.String("addr", "http://localhost:9644", "debug-bundle service base URL")

	cmd := os.Args[1]
	if err := fs.Parse(os.Args[2:]); err != nil {
		os.Exit(2)
	}

	var err error
	switch cmd {
	case "start":
		err = runStart(fs, *addr)
	case "cancel":
		err = runSimple(http.MethodPost, *addr, fs, "/cancel")
	case "status":
		err = runStatus(*addr)
	case "fetch":
		err = runFetch(fs, *addr)
	case "delete":
		err = runSimple(http.MethodDelete, *addr, fs, "")
	default:
		usage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintln(os.Stderr, "debugbundlectl:", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `usage: debugbundlectl <start|cancel|status|fetch|delete> [-addr url] <job_id>`)
}

func jobIDArg(fs *flag.FlagSet) (string, error) {
	if fs.NArg() < 1 {
		return "", fmt.Errorf("missing job_id argument")
	}
	return fs.Arg(0), nil
}

func runStart(fs *flag.FlagSet, addr string) error {
	jobID, err := jobIDArg(fs)
	if err != nil {
		return err
	}
	return doRequest(http.MethodPost, addr+"/v1/debug-bundle/"+jobID, nil)
}

func runSimple(method, addr string, fs *flag.FlagSet, suffix string) error {
	jobID, err := jobIDArg(fs)
	if err != nil {
		return err
	}
	return doRequest(method, addr+"/v1/debug-bundle/"+jobID+suffix, nil)
}

func runStatus(addr string) error {
	return doRequest(http.MethodGet, addr+"/v1/debug-bundle", os.Stdout)
}

func runFetch(fs *flag.FlagSet, addr string) error {
	jobID, err := jobIDArg(fs)
	if err != nil {
		return err
	}

	resp, err := http.Get(addr + "/v1/debug-bundle/" + jobID + "/path")
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return reportError(resp)
	}

	out, err := os.Create(jobID + ".zip")
	if err != nil {
		return err
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	fmt.Println("wrote", out.Name())
	return nil
}

func doRequest(method, url string, echoTo io.Writer) error {
	req, err := http.NewRequest(method, url, nil)
	if err != nil {
		return err
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 400 {
		return reportError(resp)
	}
	if echoTo != nil {
		var pretty map[string]any
		if err := json.NewDecoder(resp.Body).Decode(&pretty); err == nil {
			enc := json.NewEncoder(echoTo)
			enc.SetIndent("", "  ")
			return enc.Encode(pretty)
		}
	}
	return nil
}

func reportError(resp *http.Response) error {
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err == nil && body["error"] != "" {
		return fmt.Errorf("%s: %s", resp.Status, body["error"])
	}
	return fmt.Errorf("%s", resp.Status)
}
