package power

import "context"

// MockWolSender is a mock implementation of WolSender
type MockWolSender struct {
	WakeCalled    bool
	WakeCallCount int
	LastMAC       string
	LastIP        string
	LastPort      int
	ReturnError   error
}

func (m *MockWolSender) Wake(macAddress string, port int, broadcastIP string) error {
	m.WakeCalled = true
	m.WakeCallCount++
	m.LastMAC = macAddress
	m.LastIP = broadcastIP
	m.LastPort = port
	return m.ReturnError
}

// MockProber is a mock implementation of Prober
type MockProber struct {
	Reachable bool
	// ReachableAfter, when positive, makes the host reachable from that
	// IsReachable call onwards regardless of Reachable.
	ReachableAfter     int
	ReachableCallCount int
	LastAddress        string

	OpenPorts      map[int32]bool
	PortCheckCount int
	CheckedPorts   []int32

	Internet bool
}

func (m *MockProber) IsReachable(_ context.Context, address string) bool {
	m.ReachableCallCount++
	m.LastAddress = address
	if m.ReachableAfter > 0 && m.ReachableCallCount >= m.ReachableAfter {
		return true
	}
	return m.Reachable
}

func (m *MockProber) IsPortOpen(_ context.Context, address string, port int32) bool {
	m.PortCheckCount++
	m.CheckedPorts = append(m.CheckedPorts, port)
	m.LastAddress = address
	return m.OpenPorts[port]
}

func (m *MockProber) HasInternetConnectivity(context.Context) bool {
	return m.Internet
}

// SetPort marks port as open or closed.
func (m *MockProber) SetPort(port int32, open bool) {
	if m.OpenPorts == nil {
		m.OpenPorts = map[int32]bool{}
	}
	m.OpenPorts[port] = open
}

// MockExecutor is a mock implementation of RemoteExecutor
type MockExecutor struct {
	RunCallCount int
	Commands     [][]string
	LastHost     Host
	RunResult    *Result

	ScriptCallCount int
	Scripts         []string
	// ScriptResults overrides the result per script name. Scripts without an
	// entry exit zero.
	ScriptResults map[string]*Result
	// OnRunScript is invoked after a script "runs", before its result is
	// returned.
	OnRunScript func(name string)

	ReturnError error
}

func (m *MockExecutor) Run(_ context.Context, host Host, command []string, _ []byte, _ bool) (*Result, error) {
	m.RunCallCount++
	m.Commands = append(m.Commands, command)
	m.LastHost = host
	if m.ReturnError != nil {
		return nil, m.ReturnError
	}
	if m.RunResult != nil {
		return m.RunResult, nil
	}
	return &Result{}, nil
}

func (m *MockExecutor) RunScript(_ context.Context, host Host, name string, _ bool) (*Result, error) {
	m.ScriptCallCount++
	m.Scripts = append(m.Scripts, name)
	m.LastHost = host
	if m.ReturnError != nil {
		return nil, m.ReturnError
	}
	if m.OnRunScript != nil {
		m.OnRunScript(name)
	}
	if res, ok := m.ScriptResults[name]; ok {
		return res, nil
	}
	return &Result{}, nil
}

// TotalCalls is the number of remote invocations of any kind.
func (m *MockExecutor) TotalCalls() int {
	return m.RunCallCount + m.ScriptCallCount
}
