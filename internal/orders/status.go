package orders

type Status string

const (
	StatusPending   Status = "PENDING"
	StatusCancelled Status = "CANCELLED"
	StatusFulfilled Status = "FULFILLED"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusCancelled: true, StatusFulfilled: true},
	StatusCancelled: {},
	StatusFulfilled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func ValidStatus(s Status) bool {
	_, ok := validNext[s]
	return ok
}
