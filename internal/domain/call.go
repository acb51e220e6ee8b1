package domain

import "time"

// CallSession связывает текущий звонок с вакансией и кандидатом
type CallSession struct {
	TicketID  string    `json:"ticket_id"`
	ProfileID string    `json:"profile_id"`
	StartedAt time.Time `json:"started_at"`
}

type CallEventKind string

const (
	CallEnded         CallEventKind = "CallEnded"
	CallEndedIncoming CallEventKind = "CallEndedIncoming"
)

// CallEvent - терминальное событие звонка от платформы
type CallEvent struct {
	Kind        CallEventKind `json:"kind"`
	PhoneNumber string        `json:"phone_number,omitempty"`
	At          time.Time     `json:"at"`
}

// PhoneState - сырые состояния телефонии (TelephonyManager.EXTRA_STATE)
type PhoneState string

const (
	PhoneStateIdle    PhoneState = "IDLE"
	PhoneStateRinging PhoneState = "RINGING"
	PhoneStateOffhook PhoneState = "OFFHOOK"
)

type Capability string

const (
	CapabilityStorageRead Capability = "storageRead"
	CapabilityAudioMedia  Capability = "audioMedia"
	CapabilityPhoneState  Capability = "phoneState"
	CapabilityCallLog     Capability = "callLog"
)

// PipelineCapabilities - всё, что нужно конвейеру записи звонков
var PipelineCapabilities = []Capability{
	CapabilityStorageRead,
	CapabilityAudioMedia,
	CapabilityPhoneState,
}

type PipelineState string

const (
	StateIdle                PipelineState = "idle"
	StatePermissionsChecking PipelineState = "permissions_checking"
	StateReady               PipelineState = "ready"
	StateCallInProgress      PipelineState = "call_in_progress"
	StateResolving           PipelineState = "resolving"
	StateUploading           PipelineState = "uploading"
)
