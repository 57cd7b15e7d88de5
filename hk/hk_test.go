/*
 * Copyright (c) 2024, flowrt authors.
 */
package hk_test

import (
	"time"

	"github.com/flowmesh/flowrt/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

var _ = Describe("Housekeeper", func() {
	It("fires a registered callback and reschedules it", func() {
		calls := make(chan struct{}, 8)
		hk.Reg("t-fire"+hk.NameSuffix, func() time.Duration {
			calls <- struct{}{}
			return 10 * time.Millisecond
		}, 5*time.Millisecond)
		defer hk.Unreg("t-fire" + hk.NameSuffix)

		Eventually(calls, time.Second).Should(Receive())
		Eventually(calls, time.Second).Should(Receive())
	})

	It("stops firing once unregistered", func() {
		calls := make(chan struct{}, 8)
		name := "t-unreg" + hk.NameSuffix
		hk.Reg(name, func() time.Duration {
			calls <- struct{}{}
			return 5 * time.Millisecond
		}, 5*time.Millisecond)

		Eventually(calls, time.Second).Should(Receive())
		hk.Unreg(name)

		for len(calls) > 0 {
			<-calls
		}
		Consistently(calls, 50*time.Millisecond).ShouldNot(Receive())
	})
})
