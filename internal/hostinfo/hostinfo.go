// Package hostinfo identifies the machine the watcher runs on: hostname plus
// best-effort cloud instance identity from the AWS, GCP, or Azure metadata
// services. Identity is attached to reports and alert emails so operators in
// a shared fleet can tell which box has the idle GPUs.
package hostinfo

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"strings"
	"time"

	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

const imdsBase = "http://169.254.169.254"
const gcpBase = "http://metadata.google.internal/computeMetadata/v1"

// Detect returns the host identity. Cloud probing is skipped when probeCloud
// is false; probe failures only mean the cloud fields stay empty.
func Detect(ctx context.Context, probeCloud bool, timeout time.Duration) model.HostInfo {
	info := model.HostInfo{}
	if name, err := os.Hostname(); err == nil {
		info.Hostname = name
	}

	if !probeCloud {
		return info
	}

	client := &http.Client{Timeout: timeout}
	probes := []struct {
		name string
		fn   func(context.Context, *http.Client, *model.HostInfo) error
	}{
		{"aws", func(ctx context.Context, c *http.Client, i *model.HostInfo) error {
			return probeAWS(ctx, c, imdsBase, i)
		}},
		{"gcp", func(ctx context.Context, c *http.Client, i *model.HostInfo) error {
			return probeGCP(ctx, c, gcpBase, i)
		}},
		{"azure", func(ctx context.Context, c *http.Client, i *model.HostInfo) error {
			return probeAzure(ctx, c, imdsBase, i)
		}},
	}

	for _, p := range probes {
		if err := p.fn(ctx, client, &info); err != nil {
			slog.Debug("cloud identity probe failed", "provider", p.name, "error", err)
			continue
		}
		info.Provider = p.name
		slog.Debug("cloud identity detected",
			"provider", p.name, "instance_id", info.InstanceID, "zone", info.Zone)
		break
	}

	return info
}

// probeAWS uses IMDSv2: fetch a session token, then the identity document.
func probeAWS(ctx context.Context, client *http.Client, base string, info *model.HostInfo) error {
	token, err := fetchBody(ctx, client, http.MethodPut, base+"/latest/api/token",
		map[string]string{"X-aws-ec2-metadata-token-ttl-seconds": "60"})
	if err != nil {
		return err
	}

	body, err := fetchBody(ctx, client, http.MethodGet,
		base+"/latest/dynamic/instance-identity/document",
		map[string]string{"X-aws-ec2-metadata-token": token})
	if err != nil {
		return err
	}

	var doc struct {
		AvailabilityZone string `json:"availabilityZone"`
		InstanceType     string `json:"instanceType"`
		InstanceID       string `json:"instanceId"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return err
	}

	info.InstanceID = doc.InstanceID
	info.InstanceType = doc.InstanceType
	info.Zone = doc.AvailabilityZone
	return nil
}

func probeGCP(ctx context.Context, client *http.Client, base string, info *model.HostInfo) error {
	headers := map[string]string{"Metadata-Flavor": "Google"}

	id, err := fetchBody(ctx, client, http.MethodGet, base+"/instance/id", headers)
	if err != nil {
		return err
	}

	// Zone and machine type come back as full resource paths; keep the leaf.
	zone, err := fetchBody(ctx, client, http.MethodGet, base+"/instance/zone", headers)
	if err != nil {
		return err
	}
	machineType, err := fetchBody(ctx, client, http.MethodGet, base+"/instance/machine-type", headers)
	if err != nil {
		return err
	}

	info.InstanceID = id
	info.Zone = lastPathSegment(zone)
	info.InstanceType = lastPathSegment(machineType)
	return nil
}

func probeAzure(ctx context.Context, client *http.Client, base string, info *model.HostInfo) error {
	body, err := fetchBody(ctx, client, http.MethodGet,
		base+"/metadata/instance/compute?api-version=2021-02-01",
		map[string]string{"Metadata": "true"})
	if err != nil {
		return err
	}

	var doc struct {
		Location string `json:"location"`
		VMSize   string `json:"vmSize"`
		VMID     string `json:"vmId"`
	}
	if err := json.Unmarshal([]byte(body), &doc); err != nil {
		return err
	}

	info.InstanceID = doc.VMID
	info.InstanceType = doc.VMSize
	info.Zone = doc.Location
	return nil
}

// fetchBody performs one metadata request and returns the trimmed body.
func fetchBody(ctx context.Context, client *http.Client, method, url string, headers map[string]string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, method, url, nil)
	if err != nil {
		return "", err
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := client.Do(req)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("metadata %s returned %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(body)), nil
}

func lastPathSegment(s string) string {
	if idx := strings.LastIndex(s, "/"); idx >= 0 {
		return s[idx+1:]
	}
	return s
}
