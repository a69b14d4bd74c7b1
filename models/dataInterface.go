package models

type Identifier interface {
	GetId() int
}

func (s Site) GetId() int {
	return s.ID
}

func (m ComplianceModule) GetId() int {
	return m.ID
}

func (o Obligation) GetId() int {
	return o.ID
}

func (d Deadline) GetId() int {
	return d.ID
}

func (c ContractorLicence) GetId() int {
	return c.ID
}

func (g Generator) GetId() int {
	return g.ID
}

func (e EvidenceItem) GetId() int {
	return e.ID
}

func (c ComplianceClock) GetId() int {
	return c.ID
}

func (e EvidenceExpiryTracking) GetId() int {
	return e.ID
}

func (r RecurrenceTrigger) GetId() int {
	return r.ID
}

func (r RecurringTask) GetId() int {
	return r.ID
}

func (n NotificationRecord) GetId() int {
	return n.ID
}

func (r ReconciliationReport) GetId() int {
	return r.ID
}
