package fit

// None is an optimizer which computes the NLL at the starting point
// and exits.
type None struct {
	BaseOptimizer
}

// NewNone creates an optimizer which only evaluates the starting
// point.
func NewNone() *None {
	return &None{
		BaseOptimizer: BaseOptimizer{method: "none"},
	}
}

// Run computes the NLL.
func (n *None) Run(iterations int) error {
	x, _, err := n.start()
	if err != nil {
		return err
	}
	n.PrintHeader()
	n.nll(x)
	n.finish("evaluated", nil)
	return nil
}
