/*
 * Copyright (c) 2024, flowrt authors.
 */
package hk_test

import (
	"testing"

	"github.com/flowmesh/flowrt/hk"
	. "github.com/onsi/ginkgo"
	. "github.com/onsi/gomega"
)

func TestHousekeeper(t *testing.T) {
	hk.TestInit()
	go hk.DefaultHK.Run()
	hk.WaitStarted()
	RegisterFailHandler(Fail)
	RunSpecs(t, t.Name())
}
