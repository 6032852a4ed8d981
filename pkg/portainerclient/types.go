package portainerclient

type EnvPair struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

type StackType int

const (
	StackTypeSwarm   StackType = 1
	StackTypeCompose StackType = 2
)

func (s StackType) String() string {
	switch s {
	case StackTypeSwarm:
		return "swarm"
	case StackTypeCompose:
		return "compose"
	default:
		return "unknown"
	}
}

type Stack struct {
	Id         int
	EndpointID int `json:"EndpointId"`
	Name       string
	Type       StackType
	Env        []EnvPair
}

type Endpoint struct {
	Id        int
	Name      string
	Status    int
	Snapshots []struct {
		DockerVersion         string
		RunningContainerCount int
		ServiceCount          int
		StackCount            int
		TotalCPU              int
		TotalMemory           int64
	}
}

// Connection is everything needed to talk to one Portainer server. It is resolved once
// at startup and passed by value from there on.
type Connection struct {
	BaseUrl   string // API root, e.g. "https://portainer.example.com/api"
	Username  string
	Password  string
	SslVerify bool
}

type CreateStackRequest struct {
	Name             string
	StackFileContent string
	Env              []EnvPair
	SwarmID          string `json:",omitempty"`
}

type UpdateStackRequest struct {
	StackFileContent string
	Prune            bool
}

// Response is what the server answered to a create/update. Body is the decoded JSON (or
// the raw text if the server did not send JSON).
type Response struct {
	StatusCode int
	Body       interface{}
}

func FindEndpointByName(name string, endpoints []Endpoint) *Endpoint {
	for _, endpoint := range endpoints {
		if endpoint.Name == name {
			return &endpoint
		}
	}

	return nil
}

// first match wins, in the order the server listed them
func FindStackByName(name string, stacks []Stack) *Stack {
	for _, stack := range stacks {
		if stack.Name == name {
			return &stack
		}
	}

	return nil
}
