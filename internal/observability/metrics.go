package observability

// Use case RED metrics, labelled {use_case,outcome} and {use_case}.
const (
	MUsecaseRequests MetricKey = "usecase_requests_total"
	MUsecaseDuration MetricKey = "usecase_duration_seconds"
)

// Inbound HTTP, labelled {method,route,status}.
const (
	MHTTPRequests        MetricKey = "http_requests_total"
	MHTTPRequestDuration MetricKey = "http_request_duration_seconds"
)

// Calls to the catalog, carrier, rule store and payment gateway, labelled
// {peer,endpoint,outcome} and {peer,endpoint}.
const (
	MExternalRequests        MetricKey = "external_requests_total"
	MExternalRequestDuration MetricKey = "external_request_duration_seconds"
)

// Settlement specific counters.
const (
	// {stage,outcome} for each checkout pipeline stage.
	MCheckoutStages MetricKey = "checkout_stage_total"
	// {currency}, incremented by the committed discount of each checkout.
	MDiscountAllocated MetricKey = "discount_allocated_minor_total"
	// {event,outcome} per in-process subscriber delivery.
	MOutboxEvents MetricKey = "outbox_events_total"
)
