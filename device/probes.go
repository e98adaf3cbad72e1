package device

import (
	"fmt"
	"net"
	"os"
	"os/exec"
	"runtime"
	"sort"
	"strings"
	"time"

	"github.com/pkg/errors"
)

// cpuUnknownSentinel is reported when the logical CPU count cannot be
// determined, so the signal position stays stable across environments.
const cpuUnknownSentinel = "cpu:unknown"

// DefaultProbes returns the ordered signal set sampled on this platform.
// The ordering is part of the fingerprint contract: reordering probes
// changes every hash.
func DefaultProbes() []Probe {
	return []Probe{
		{Name: "runtime", Sample: runtimeProbe},
		{Name: "locale", Sample: localeProbe},
		{Name: "platform", Sample: platformProbe},
		{Name: "cpus", Sample: cpuProbe},
		{Name: "timezone", Sample: timezoneProbe},
		{Name: "interfaces", Sample: interfaceProbe},
		{Name: "hardware-uuid", Sample: hardwareUUIDProbe},
		{Name: "user", Sample: userProbe},
	}
}

// runtimeProbe is the client analogue of a user-agent string.
func runtimeProbe() (string, error) {
	return fmt.Sprintf("go/%s %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH), nil
}

func localeProbe() (string, error) {
	for _, key := range []string{"LC_ALL", "LANG", "LANGUAGE"} {
		if v := os.Getenv(key); v != "" {
			return "lang:" + v, nil
		}
	}
	return "", errors.New("no locale environment variables set")
}

func platformProbe() (string, error) {
	hostname, err := os.Hostname()
	if err != nil {
		return "", errors.Wrap(err, "[platformProbe] os.Hostname")
	}
	return "host:" + hostname, nil
}

func cpuProbe() (string, error) {
	n := runtime.NumCPU()
	if n <= 0 {
		return cpuUnknownSentinel, nil
	}
	return fmt.Sprintf("cpu:%d", n), nil
}

func timezoneProbe() (string, error) {
	_, offset := time.Now().Zone()
	return fmt.Sprintf("tz:%d", offset), nil
}

// interfaceProbe samples hardware addresses, sorted so enumeration order
// does not perturb the hash.
func interfaceProbe() (string, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return "", errors.Wrap(err, "[interfaceProbe] net.Interfaces")
	}
	var addrs []string
	for _, iface := range ifaces {
		if iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		if hw := iface.HardwareAddr.String(); hw != "" {
			addrs = append(addrs, hw)
		}
	}
	if len(addrs) == 0 {
		return "", errors.New("no hardware addresses found")
	}
	sort.Strings(addrs)
	return "if:" + strings.Join(addrs, ","), nil
}

func userProbe() (string, error) {
	for _, key := range []string{"USER", "USERNAME", "LOGNAME"} {
		if v := os.Getenv(key); v != "" {
			return "user:" + v, nil
		}
	}
	return "", errors.New("no user environment variables set")
}

// hardwareUUIDProbe reads the platform hardware UUID. Each OS has its own
// lookup chain; unsupported platforms report an error and the signal is
// omitted.
func hardwareUUIDProbe() (string, error) {
	switch runtime.GOOS {
	case "darwin":
		return darwinHardwareUUID()
	case "linux":
		return linuxHardwareUUID()
	case "windows":
		return windowsHardwareUUID()
	default:
		return "", errors.New("hardware UUID not available on " + runtime.GOOS)
	}
}

func darwinHardwareUUID() (string, error) {
	out, err := exec.Command("ioreg", "-rd1", "-c", "IOPlatformExpertDevice").Output()
	if err != nil {
		return "", errors.Wrap(err, "[darwinHardwareUUID] ioreg")
	}
	for _, line := range strings.Split(string(out), "\n") {
		if !strings.Contains(line, "IOPlatformUUID") {
			continue
		}
		parts := strings.Split(line, "\"")
		if len(parts) >= 4 {
			return "hw:" + parts[3], nil
		}
	}
	return "", errors.New("no IOPlatformUUID found")
}

func linuxHardwareUUID() (string, error) {
	if raw, err := os.ReadFile("/sys/class/dmi/id/product_uuid"); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return "hw:" + id, nil
		}
	}
	if raw, err := os.ReadFile("/etc/machine-id"); err == nil {
		if id := strings.TrimSpace(string(raw)); id != "" {
			return "hw:" + id, nil
		}
	}
	return "", errors.New("no hardware UUID found on Linux")
}

func windowsHardwareUUID() (string, error) {
	out, err := exec.Command("wmic", "csproduct", "get", "UUID").Output()
	if err != nil {
		return "", errors.Wrap(err, "[windowsHardwareUUID] wmic")
	}
	for _, line := range strings.Split(string(out), "\n") {
		str := strings.TrimSpace(line)
		if str != "" && !strings.EqualFold(str, "UUID") {
			return "hw:" + str, nil
		}
	}
	return "", errors.New("no hardware UUID found on Windows")
}
