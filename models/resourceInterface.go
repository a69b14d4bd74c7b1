package models

func (s Site) GetCompanyId() string {
	return s.CompanyId
}

func (m ComplianceModule) GetCompanyId() string {
	return m.CompanyId
}

func (n NotificationSetting) GetCompanyId() string {
	return n.CompanyId
}

func (u User) GetCompanyId() string {
	return u.CompanyId
}

func (o Obligation) GetCompanyId() string {
	return o.CompanyId
}

func (d Deadline) GetCompanyId() string {
	return d.CompanyId
}

func (c ContractorLicence) GetCompanyId() string {
	return c.CompanyId
}

func (g Generator) GetCompanyId() string {
	return g.CompanyId
}

func (e EvidenceItem) GetCompanyId() string {
	return e.CompanyId
}

func (s StackTest) GetCompanyId() string {
	return s.CompanyId
}

func (r RuntimeMonitoring) GetCompanyId() string {
	return r.CompanyId
}

func (c ComplianceClock) GetCompanyId() string {
	return c.CompanyId
}

func (e EvidenceExpiryTracking) GetCompanyId() string {
	return e.CompanyId
}

func (r RecurrenceTrigger) GetCompanyId() string {
	return r.CompanyId
}

func (r RecurringTask) GetCompanyId() string {
	return r.CompanyId
}

func (n NotificationRecord) GetCompanyId() string {
	return n.CompanyId
}

func (r ReconciliationReport) GetCompanyId() string {
	return r.CompanyId
}

func (h History) GetCompanyId() string {
	return h.CompanyId
}
