package ws

type Hubs struct {
	Monitoring  *MonitoringHub
	Participant *ParticipantHub
}

func NewHubs() *Hubs {
	return &Hubs{
		Monitoring:  NewMonitoringHub(),
		Participant: NewParticipantHub(),
	}
}

func (h *Hubs) Run() {
	go h.Monitoring.Run()
	go h.Participant.Run()
}
