package models

import (
	"fmt"
	"time"

	"gorm.io/gorm"
)

// Hooks audit admin-managed rows. Engine-owned tables (compliance clocks,
// expiry tracking, recurring tasks, run reports, notification records) have
// no hooks: the passes write them batch-style without a user in context.

func describeDueDateCreated(kind string, dueDate time.Time) string {
	return fmt.Sprintf("Created %s. Due %s.", kind, dueDate.Format("2006-01-02"))
}

func (o *Obligation) AfterCreate(tx *gorm.DB) (err error) {
	description := "Created Obligation"
	if o.DueDate != nil {
		description = describeDueDateCreated("Obligation", *o.DueDate)
	}
	if err := SaveHistoryCreate(tx, o.ID, o, description); err != nil {
		return err
	}

	return nil
}

func (o *Obligation) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, o.ID, o, "Updated Obligation"); err != nil {
		return err
	}
	if err := o.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (o *Obligation) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, o.ID, o, "Deleted Obligation"); err != nil {
		return err
	}
	if err := o.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (d *Deadline) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, d.ID, d, describeDueDateCreated("Deadline", d.DeadlineDate)); err != nil {
		return err
	}

	return nil
}

func (d *Deadline) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, d.ID, d, "Updated Deadline"); err != nil {
		return err
	}
	if err := d.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (d *Deadline) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, d.ID, d, "Deleted Deadline"); err != nil {
		return err
	}
	if err := d.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (c *ContractorLicence) AfterCreate(tx *gorm.DB) (err error) {
	description := "Created ContractorLicence"
	if c.ExpiryDate != nil {
		description = fmt.Sprintf("Created ContractorLicence %s. Expires %s.", c.LicenceNumber, c.ExpiryDate.Format("2006-01-02"))
	}
	if err := SaveHistoryCreate(tx, c.ID, c, description); err != nil {
		return err
	}

	return nil
}

func (c *ContractorLicence) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, c.ID, c, "Updated ContractorLicence"); err != nil {
		return err
	}
	if err := c.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (c *ContractorLicence) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, c.ID, c, "Deleted ContractorLicence"); err != nil {
		return err
	}
	if err := c.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (g *Generator) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, g.ID, g, "Created Generator"); err != nil {
		return err
	}

	return nil
}

func (g *Generator) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, g.ID, g, "Updated Generator"); err != nil {
		return err
	}
	if err := g.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (g *Generator) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, g.ID, g, "Deleted Generator"); err != nil {
		return err
	}
	if err := g.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (e *EvidenceItem) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, e.ID, e, "Created EvidenceItem"); err != nil {
		return err
	}

	return nil
}

func (e *EvidenceItem) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, e.ID, e, "Updated EvidenceItem"); err != nil {
		return err
	}
	if err := e.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (e *EvidenceItem) AfterDelete(tx *gorm.DB) (err error) {
	// the expiry pass reaps the tracking row on its next run
	if err := SaveHistoryDelete(tx, e.ID, e, "Deleted EvidenceItem"); err != nil {
		return err
	}
	if err := e.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (s *StackTest) AfterCreate(tx *gorm.DB) (err error) {
	description := fmt.Sprintf("Created StackTest (%s). Tested %s.", s.Result, s.TestDate.Format("2006-01-02"))
	if err := SaveHistoryCreate(tx, s.ID, s, description); err != nil {
		return err
	}

	return nil
}

func (s *StackTest) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, s.ID, s, "Updated StackTest"); err != nil {
		return err
	}

	return nil
}

func (s *StackTest) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, s.ID, s, "Deleted StackTest"); err != nil {
		return err
	}

	return nil
}

func (t *RecurrenceTrigger) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, t.ID, t, fmt.Sprintf("Created RecurrenceTrigger (%s)", t.TriggerType)); err != nil {
		return err
	}

	return nil
}

func (t *RecurrenceTrigger) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, t.ID, t, "Updated RecurrenceTrigger"); err != nil {
		return err
	}

	return nil
}

func (t *RecurrenceTrigger) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, t.ID, t, "Deleted RecurrenceTrigger"); err != nil {
		return err
	}

	return nil
}

func (s *Site) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, s.ID, s, "Created Site"); err != nil {
		return err
	}

	return nil
}

func (s *Site) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, s.ID, s, "Updated Site"); err != nil {
		return err
	}
	if err := s.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (s *Site) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, s.ID, s, "Deleted Site"); err != nil {
		return err
	}
	if err := s.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (m *ComplianceModule) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, m.ID, m, "Created ComplianceModule"); err != nil {
		return err
	}
	if err := m.RemoveAllRedis(); err != nil {
		return err
	}

	return nil
}

func (m *ComplianceModule) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, m.ID, m, "Updated ComplianceModule"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*m); err != nil {
		return err
	}

	return nil
}

func (m *ComplianceModule) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, m.ID, m, "Deleted ComplianceModule"); err != nil {
		return err
	}
	if err := RemoveRedisBoth(*m); err != nil {
		return err
	}

	return nil
}

func (n *NotificationSetting) AfterCreate(tx *gorm.DB) (err error) {
	if err := SaveHistoryCreate(tx, n.ID, n, "Created NotificationSetting"); err != nil {
		return err
	}

	return nil
}

func (n *NotificationSetting) BeforeUpdate(tx *gorm.DB) (err error) {
	if err := SaveHistoryUpdate(tx, n.ID, n, "Updated NotificationSetting"); err != nil {
		return err
	}
	if err := n.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}

func (n *NotificationSetting) AfterDelete(tx *gorm.DB) (err error) {
	if err := SaveHistoryDelete(tx, n.ID, n, "Deleted NotificationSetting"); err != nil {
		return err
	}
	if err := n.RemoveInstanceRedis(); err != nil {
		return err
	}

	return nil
}
