package coordinator

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/alicebob/miniredis"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"k8s.io/apimachinery/pkg/api/resource"
	"k8s.io/utils/clock"

	"github.com/armadaproject/mesoscoordinator/internal/cluster"
	commonconfig "github.com/armadaproject/mesoscoordinator/internal/common/config"
	"github.com/armadaproject/mesoscoordinator/internal/common/coordcontext"
	"github.com/armadaproject/mesoscoordinator/internal/common/httpclient"
	"github.com/armadaproject/mesoscoordinator/internal/coordinator/configuration"
	"github.com/armadaproject/mesoscoordinator/internal/framework"
	"github.com/armadaproject/mesoscoordinator/internal/framework/marathon"
	"github.com/armadaproject/mesoscoordinator/internal/location"
)

func newFakeMaster(t *testing.T) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/master/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	mux.HandleFunc("/master/state.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"cluster":"prod","id":"m-1","version":"1.11.0"}`))
	})
	mux.HandleFunc("/master/tasks.json", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"tasks":[]}`))
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func clusterConfig(id string, masterUrl string) cluster.Config {
	return cluster.Config{
		Id:                        id,
		MasterUrl:                 masterUrl,
		LocationPrefix:            "mesos",
		HealthPollInterval:        10 * time.Millisecond,
		ScanInterval:              10 * time.Millisecond,
		FrameworkPollInterval:     10 * time.Millisecond,
		ApplicationRescanInterval: 10 * time.Millisecond,
	}
}

func testConfig(clusters ...cluster.Config) configuration.CoordinatorConfiguration {
	return configuration.CoordinatorConfiguration{
		Naming:      configuration.NamingConfiguration{Type: configuration.MemoryNaming},
		StopTimeout: time.Second,
		HttpClient: httpclient.Config{
			Timeout:      time.Second,
			RetryWaitMin: time.Millisecond,
			RetryWaitMax: time.Millisecond,
		},
		Clusters: clusters,
	}
}

func TestStartUp_StartsAndShutsDownClusters(t *testing.T) {
	master := newFakeMaster(t)
	c, err := StartUp(testConfig(clusterConfig("a", master.URL), clusterConfig("b", master.URL)))
	require.NoError(t, err)

	require.Len(t, c.Clusters(), 2)
	for _, cl := range c.Clusters() {
		assert.Equal(t, cluster.Running, cl.State())
	}
	assert.Eventually(t, func() bool { return c.Check() == nil }, time.Second, 5*time.Millisecond)

	for _, name := range []string{"mesos-a", "mesos-b"} {
		definition, err := c.naming.Lookup(name)
		require.NoError(t, err)
		assert.NotNil(t, definition, name)
	}

	c.Shutdown()
	c.Wait()
	c.Shutdown()

	for _, cl := range c.Clusters() {
		assert.Equal(t, cluster.Stopped, cl.State())
	}
	assert.Error(t, c.Check())
	definition, err := c.naming.Lookup("mesos-a")
	require.NoError(t, err)
	assert.Nil(t, definition)
}

func TestStart_DuplicateLocationFailsOnlyThatCluster(t *testing.T) {
	master := newFakeMaster(t)
	first := clusterConfig("a", master.URL)
	first.LocationName = "shared"
	second := clusterConfig("b", master.URL)
	second.LocationName = "shared"

	naming, err := location.NewMemoryNamingRegistry()
	require.NoError(t, err)
	c, err := New(testConfig(first, second), naming, framework.NewFactory(), clock.RealClock{})
	require.NoError(t, err)
	defer c.Shutdown()

	err = c.Start(coordcontext.Background())
	assert.Error(t, err)

	clusters := c.Clusters()
	assert.Equal(t, cluster.Running, clusters[0].State())
	assert.Equal(t, cluster.Uninitialized, clusters[1].State())

	reports := c.Stop(coordcontext.Background())
	assert.Len(t, reports, 1)
	assert.Contains(t, reports, "a")
}

func TestReloaded_RedefinesLostLocations(t *testing.T) {
	master := newFakeMaster(t)
	naming, err := location.NewMemoryNamingRegistry()
	require.NoError(t, err)
	c, err := New(testConfig(clusterConfig("a", master.URL)), naming, framework.NewFactory(), clock.RealClock{})
	require.NoError(t, err)
	defer c.Shutdown()
	require.NoError(t, c.Start(coordcontext.Background()))

	definition, err := naming.Lookup("mesos-a")
	require.NoError(t, err)
	require.NoError(t, naming.Remove(definition.Id))

	c.Reloaded()

	definition, err = naming.Lookup("mesos-a")
	require.NoError(t, err)
	assert.NotNil(t, definition)
}

func TestNew_BuildsMarathonFrameworksWithTaskDefaults(t *testing.T) {
	config := clusterConfig("a", "http://mesos-master:5050")
	config.Frameworks = []framework.Spec{
		{Kind: marathon.Kind, Name: "defaults", Url: "http://marathon:8080"},
		{Kind: marathon.Kind, Name: "overridden", Url: "http://marathon:8081", Flags: map[string]string{marathon.FlagCpus: "2"}},
	}
	coordinatorConfig := testConfig(config)
	coordinatorConfig.TaskDefaults = configuration.TaskDefaults{
		Cpu:    resource.MustParse("500m"),
		Memory: resource.MustParse("1Gi"),
	}

	naming, err := location.NewMemoryNamingRegistry()
	require.NoError(t, err)
	c, err := New(coordinatorConfig, naming, framework.NewFactory(), clock.RealClock{})
	require.NoError(t, err)

	flags := map[string]map[string]string{}
	for _, fw := range c.Clusters()[0].Frameworks() {
		assert.Equal(t, marathon.Kind, fw.Kind())
		flags[fw.GetName()] = fw.(*marathon.Framework).Flags()
	}
	assert.Equal(t, map[string]string{marathon.FlagCpus: "0.5", marathon.FlagMemory: "1024"}, flags["defaults"])
	assert.Equal(t, map[string]string{marathon.FlagCpus: "2", marathon.FlagMemory: "1024"}, flags["overridden"])
}

func TestNew_UnknownFrameworkKind(t *testing.T) {
	config := clusterConfig("a", "http://mesos-master:5050")
	config.Frameworks = []framework.Spec{{Kind: "chronos", Url: "http://chronos:4400"}}

	naming, err := location.NewMemoryNamingRegistry()
	require.NoError(t, err)
	_, err = New(testConfig(config), naming, framework.NewFactory(), clock.RealClock{})
	assert.Error(t, err)
}

func TestWithDefaults_HttpClient(t *testing.T) {
	config := testConfig()
	config.HttpClient = httpclient.Config{}

	result := withDefaults(clusterConfig("a", "http://mesos-master:5050"), config)
	assert.Equal(t, httpclient.DefaultConfig(), result.HttpClient)

	own := clusterConfig("b", "http://mesos-master:5050")
	own.HttpClient = httpclient.Config{Timeout: time.Minute}
	result = withDefaults(own, config)
	assert.Equal(t, time.Minute, result.HttpClient.Timeout)
}

func TestNewNamingRegistry(t *testing.T) {
	server, err := miniredis.Run()
	require.NoError(t, err)
	defer server.Close()

	tests := map[string]struct {
		config  configuration.NamingConfiguration
		wantErr bool
	}{
		"memory": {config: configuration.NamingConfiguration{Type: configuration.MemoryNaming}},
		"redis": {config: configuration.NamingConfiguration{
			Type:  configuration.RedisNaming,
			Redis: &commonconfig.RedisConfig{Addrs: []string{server.Addr()}, PoolSize: 2},
		}},
		"redis without config": {config: configuration.NamingConfiguration{Type: configuration.RedisNaming}, wantErr: true},
		"unknown":              {config: configuration.NamingConfiguration{Type: "zookeeper"}, wantErr: true},
	}
	for name, tc := range tests {
		t.Run(name, func(t *testing.T) {
			naming, closeNaming, err := NewNamingRegistry(tc.config)
			if tc.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			defer closeNaming()

			defined, err := naming.Define("mesos-"+name, `mesos:a:(name="mesos-a")`, map[string]string{"zone": "a"})
			require.NoError(t, err)
			found, err := naming.Lookup("mesos-" + name)
			require.NoError(t, err)
			require.NotNil(t, found)
			assert.Equal(t, defined.Id, found.Id)
			assert.Equal(t, "a", found.Flag("zone"))
		})
	}
}
