package models

import (
	"github.com/ecocomply/compliance_backend/utils"
)

type RedisCleaner interface {
	RemoveInstanceRedis() error // remove one
	RemoveAllRedis() error      // remove list & map if exists
}

// remove both item & list + map
func RemoveRedisBoth[T RedisCleaner](obj T) error {
	if err := obj.RemoveInstanceRedis(); err != nil {
		return err
	}
	if err := obj.RemoveAllRedis(); err != nil {
		return err
	}
	return nil
}

func (obj Site) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Site](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Site) RemoveAllRedis() error {
	return nil
}

func (obj ComplianceModule) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[ComplianceModule](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj ComplianceModule) RemoveAllRedis() error {
	if err := utils.RemoveRedisList[AllComplianceModule](obj.CompanyId); err != nil {
		return err
	}
	return nil
}

func (obj Obligation) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Obligation](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Obligation) RemoveAllRedis() error {
	return nil
}

func (obj Deadline) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Deadline](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Deadline) RemoveAllRedis() error {
	return nil
}

func (obj ContractorLicence) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[ContractorLicence](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj ContractorLicence) RemoveAllRedis() error {
	return nil
}

func (obj Generator) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[Generator](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj Generator) RemoveAllRedis() error {
	return nil
}

func (obj EvidenceItem) RemoveInstanceRedis() error {
	if err := utils.RemoveRedisItem[EvidenceItem](obj.ID); err != nil {
		return err
	}
	return nil
}

func (obj EvidenceItem) RemoveAllRedis() error {
	return nil
}

// triggers are not cached, only audited
func (obj RecurrenceTrigger) RemoveInstanceRedis() error {
	return nil
}

func (obj RecurrenceTrigger) RemoveAllRedis() error {
	return nil
}
