package beap

// DeliveryMethod names an outbound transport.
type DeliveryMethod string

const (
	MethodEmail     DeliveryMethod = "email"
	MethodMessenger DeliveryMethod = "messenger"
	MethodDownload  DeliveryMethod = "download"
)

// Transport delivers one built package. Implementations live outside the
// core (actual email/messenger/file plumbing) and may only read
// pkg.Header and pkg.Metadata.Filename.
type Transport interface {
	Deliver(pkg *BeapPackage) error
}

// Dispatcher routes built packages to their transport by delivery method.
// It is a thin layer outside the correctness boundary: it refuses anything
// that is not a finished, signed package, and otherwise just dispatches.
type Dispatcher struct {
	transports map[DeliveryMethod]Transport
}

func NewDispatcher() *Dispatcher {
	return &Dispatcher{transports: make(map[DeliveryMethod]Transport)}
}

// Register installs the transport for a method, replacing any previous one.
func (d *Dispatcher) Register(method DeliveryMethod, t Transport) {
	d.transports[method] = t
}

// Execute hands a built package to its transport.
//
// Receiving an unsigned or half-built package is a caller-side contract
// breach, not recoverable input.
func (d *Dispatcher) Execute(pkg *BeapPackage) error {
	if pkg == nil || pkg.Signature == "" {
		return newError(KindContract, "BEAP-DLV-001", "delivery requires a built, signed package")
	}
	method := pkg.Metadata.Method
	t, ok := d.transports[method]
	if !ok {
		return newError(KindValidation, "BEAP-DLV-002", "no transport registered for method "+string(method))
	}
	return t.Deliver(pkg)
}
