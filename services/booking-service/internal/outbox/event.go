package outbox

// Topics, one per event type.
const (
	EventAppointmentBooked    = "booking.appointment.booked.v1"
	EventAppointmentCancelled = "booking.appointment.cancelled.v1"
)

// Event is the domain event envelope written to the outbox table.
// The Kafka topic name equals EventType.
type Event struct {
	AggregateType string
	AggregateID   string
	EventType     string
	Payload       []byte
}
