package discovery

import (
	"errors"
	"testing"

	consulapi "github.com/hashicorp/consul/api"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeAgent struct {
	registered   *consulapi.AgentServiceRegistration
	deregistered string
	err          error
}

func (f *fakeAgent) ServiceRegister(service *consulapi.AgentServiceRegistration) error {
	if f.err != nil {
		return f.err
	}
	f.registered = service
	return nil
}

func (f *fakeAgent) ServiceDeregister(serviceID string) error {
	if f.err != nil {
		return f.err
	}
	f.deregistered = serviceID
	return nil
}

func TestRegistrarRegistersWithHealthCheck(t *testing.T) {
	agent := &fakeAgent{}
	r, err := NewRegistrarWithAgent(agent, Config{
		ServiceName:   "storefront",
		AdvertiseAddr: "10.0.0.5:8080",
		HealthURL:     "http://10.0.0.5:9090/readyz",
		Tags:          []string{"http"},
	}, nil)
	require.NoError(t, err)
	assert.Equal(t, "storefront-10.0.0.5-8080", r.ServiceID())

	require.NoError(t, r.Register())
	require.NotNil(t, agent.registered)
	assert.Equal(t, "10.0.0.5", agent.registered.Address)
	assert.Equal(t, 8080, agent.registered.Port)
	require.NotNil(t, agent.registered.Check)
	assert.Equal(t, "http://10.0.0.5:9090/readyz", agent.registered.Check.HTTP)

	require.NoError(t, r.Deregister())
	assert.Equal(t, r.ServiceID(), agent.deregistered)
}

func TestRegistrarConfigValidation(t *testing.T) {
	_, err := NewRegistrarWithAgent(&fakeAgent{}, Config{AdvertiseAddr: "host:80"}, nil)
	require.Error(t, err)

	_, err = NewRegistrarWithAgent(&fakeAgent{}, Config{ServiceName: "storefront", AdvertiseAddr: "no-port"}, nil)
	require.Error(t, err)

	_, err = NewRegistrarWithAgent(&fakeAgent{}, Config{ServiceName: "storefront", AdvertiseAddr: "host:zero"}, nil)
	require.Error(t, err)

	_, err = NewRegistrarWithAgent(nil, Config{ServiceName: "storefront", AdvertiseAddr: "host:80"}, nil)
	require.Error(t, err)
}

func TestRegistrarPropagatesAgentErrors(t *testing.T) {
	agent := &fakeAgent{err: errors.New("agent unreachable")}
	r, err := NewRegistrarWithAgent(agent, Config{ServiceName: "storefront", ServiceID: "sf-1", AdvertiseAddr: "host:80"}, nil)
	require.NoError(t, err)

	require.ErrorContains(t, r.Register(), "agent unreachable")
	require.ErrorContains(t, r.Deregister(), "sf-1")
	assert.Nil(t, agent.registered)
}
