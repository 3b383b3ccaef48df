package notify

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/gpuwatch/gpuwatch-agent/pkg/model"
)

func TestBuildSubject(t *testing.T) {
	assert.Equal(t, "GPU idle alert: 0", buildSubject(alertReport()))

	r := alertReport()
	r.Idle = r.Devices
	assert.Equal(t, "GPU idle alert: 0,1", buildSubject(r))
}

func TestBuildBody(t *testing.T) {
	body := buildBody(alertReport())

	assert.Contains(t, body, "Idle GPU(s) detected on gpu-node-7")
	assert.Contains(t, body, "(gcp 1234, a2-highgpu-1g, us-central1-a)")
	assert.Contains(t, body, "GPU 0: util=1% mem=10/40960 MiB  [idle]")
	assert.Contains(t, body, "GPU 1: util=88% mem=30000/40960 MiB")
	assert.NotContains(t, body, "GPU 1: util=88% mem=30000/40960 MiB  [idle]")
	assert.Contains(t, body, "Checked at 2023-11-14T22:13:20Z")
	assert.Contains(t, body, "report r-42")
}

func TestBuildBody_NoCloudIdentity(t *testing.T) {
	r := alertReport()
	r.Host = model.HostInfo{Hostname: "bare-metal-1"}

	body := buildBody(r)
	assert.Contains(t, body, "Idle GPU(s) detected on bare-metal-1\n")
	assert.NotContains(t, body, "gcp")
}
