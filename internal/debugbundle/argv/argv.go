// Package argv translates DebugBundleParameters into the collector
// binary's argument vector (component A, spec.md §4.A).
package argv

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/ocx/backend/internal/debugbundle"
)

// passwordFlag is the substring that must be redacted from any
// debug-logged rendering of the argv, per spec.md §4.A.
const passwordFlag = "-Xpass="

var k8sLabelRE = regexp.MustCompile(`^[A-Za-z0-9]([A-Za-z0-9-]*[A-Za-z0-9])?$`)

// Build returns the collector-binary argv for one run, in the fixed
// order spec.md §3/§4.A/§6 specifies, or an invalid_parameters error.
func Build(collectorPath, bundleFilePath string, p debugbundle.Parameters) ([]string, error) {
	if p.K8sNamespace != "" {
		if !validK8sLabel(p.K8sNamespace) {
			return nil, &debugbundle.Error{
				Tag:     debugbundle.ErrInvalidParameters,
				Message: fmt.Sprintf("k8s_namespace %q is not a valid RFC-1123 label", p.K8sNamespace),
			}
		}
	}

	args := []string{
		collectorPath,
		"debug",
		"bundle",
		"--output", bundleFilePath,
		"--verbose",
	}

	if p.Authn != nil {
		args = append(args,
			fmt.Sprintf("-Xuser=%s", p.Authn.Username),
			fmt.Sprintf("%s%s", passwordFlag, p.Authn.Password),
			fmt.Sprintf("-Xsasl.mechanism=%s", p.Authn.Mechanism),
		)
	}
	if p.ControllerLogsSizeLimitBytes != nil {
		args = append(args, "--controller-logs-size-limit", formatBytes(*p.ControllerLogsSizeLimitBytes))
	}
	if p.CPUProfilerWaitSeconds != nil {
		args = append(args, "--cpu-profiler-wait", formatSeconds(*p.CPUProfilerWaitSeconds))
	}
	if p.LogsSince != "" {
		args = append(args, "--logs-since", p.LogsSince)
	}
	if p.LogsSizeLimitBytes != nil {
		args = append(args, "--logs-size-limit", formatBytes(*p.LogsSizeLimitBytes))
	}
	if p.LogsUntil != "" {
		args = append(args, "--logs-until", p.LogsUntil)
	}
	if p.MetricsIntervalSeconds != nil {
		args = append(args, "--metrics-interval", formatSeconds(*p.MetricsIntervalSeconds))
	}
	if len(p.Partition) > 0 {
		args = append(args, "--partition", strings.Join(p.Partition, " "))
	}
	if p.TLSEnabled != nil {
		args = append(args, fmt.Sprintf("-Xtls.enabled=%s", strconv.FormatBool(*p.TLSEnabled)))
	}
	if p.TLSInsecureSkipVerify != nil {
		args = append(args, fmt.Sprintf("-Xtls.insecure_skip_verify=%s", strconv.FormatBool(*p.TLSInsecureSkipVerify)))
	}
	if p.K8sNamespace != "" {
		args = append(args, "--namespace", p.K8sNamespace)
	}

	return args, nil
}

func formatBytes(n uint64) string {
	return strconv.FormatUint(n, 10) + "B"
}

func formatSeconds(n uint64) string {
	return strconv.FormatUint(n, 10) + "s"
}

func validK8sLabel(s string) bool {
	if len(s) == 0 || len(s) > 63 {
		return false
	}
	return k8sLabelRE.MatchString(s)
}

// Redacted joins argv with spaces, blanking out any argument that
// begins with the password flag, for use in debug logs (spec.md §4.A).
func Redacted(args []string) string {
	parts := make([]string, len(args))
	for i, a := range args {
		if strings.HasPrefix(a, passwordFlag) {
			parts[i] = "[REDACTED]"
			continue
		}
		parts[i] = a
	}
	return strings.Join(parts, " ")
}
