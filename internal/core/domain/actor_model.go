package domain

const (
	ACTOR_ID_MASTER       = "master"
	ACTOR_ID_SENSORS      = "sensors"
	ACTOR_ID_TRACKER      = "tracker"
	ACTOR_ID_MQTT         = "mqtt"
	ACTOR_ID_SNAPSHOT     = "snapshot"
	ACTOR_ID_HA_DISCOVERY = "hadiscovery"
)

// ReadSensorsRequest asks the sensors actor for the raw state of the given
// entity ids. Entities without a known state are absent from the response.
type ReadSensorsRequest struct {
	ActorRequestMixIn
	EntityIds []string
}

type ReadSensorsResponse struct {
	ActorResponseMixIn
	States map[string]string
}

type GetTrackerStateRequest struct {
	ActorRequestMixIn
}

type GetTrackerStateResponse struct {
	ActorResponseMixIn
	Summary TrackerSummary
}

type GetDiagnosticsRequest struct {
	ActorRequestMixIn
}

type GetDiagnosticsResponse struct {
	ActorResponseMixIn
	Diagnostics Diagnostics
}

type SaveSnapshotRequest struct {
	ActorRequestMixIn
	Snapshot TrackerSnapshot
}

type SaveSnapshotResponse struct {
	ActorResponseMixIn
}

// FlushSnapshotRequest asks the tracker to save its state now. It is
// answered with a SaveSnapshotResponse once the store has it.
type FlushSnapshotRequest struct {
	ActorRequestMixIn
}

type LoadSnapshotRequest struct {
	ActorRequestMixIn
}

type LoadSnapshotResponse struct {
	ActorResponseMixIn
	Snapshot *TrackerSnapshot
}

type PublishMessageRequest struct {
	ActorRequestMixIn
	Topic   string
	Payload string
	Retain  bool
}

type PublishMessageResponse struct {
	ActorResponseMixIn
}

type PublishSensorUpdateRequest struct {
	ActorRequestMixIn
	Retain bool
	Event  SensorUpdateEvent
}

type PublishSensorUpdateResponse struct {
	ActorResponseMixIn
}

type PublishDiscoveryRequest struct {
	ActorRequestMixIn
	Sensors  []GenericSensor
	Switches []GenericSwitch
}

type PublishDiscoveryResponse struct {
	ActorResponseMixIn
}

type ActorHealthRequest struct {
	ActorRequestMixIn
}

type ActorHealthResponse struct {
	ActorResponseMixIn
	Id      string
	Healthy bool
	State   string
}
