package pipeline_test

import (
	"context"
	"net/http"
	"regexp"
	"time"

	"azvm/internal/naming"
	"azvm/internal/pipeline"
	"azvm/internal/provisioning"
	"azvm/internal/provisioning/provisioningtest"
	"azvm/internal/retry"
	"azvm/internal/state"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"go.uber.org/zap"
)

const imageID = "/subscriptions/sub/resourceGroups/images/providers/Microsoft.Compute/galleries/gallery/images/windows/versions/1.0.0"

var suffixPattern = regexp.MustCompile(`^\d{4}$`)

var _ = Describe("Provisioning run", func() {
	var (
		ctx      context.Context
		cloud    *provisioningtest.Cloud
		settings pipeline.Settings
	)

	BeforeEach(func() {
		ctx = context.Background()
		cloud = provisioningtest.NewCloud("sub").
			AddResourceGroup("SDK-VM", "eastus").
			AddImage(imageID, false)
		cloud.AddSubnet("SDK-VM", "SDK-VNET", "default")

		settings = pipeline.Settings{
			ResourceGroup: "SDK-VM",
			VNet:          "SDK-VNET",
			Subnet:        "default",
			Image:         provisioning.FromImage{ImageID: imageID, AdminUsername: "azure-user", AdminPassword: "Q!W@E#r4t5y6"},
			Naming:        naming.DefaultPolicy(),
			Lifecycle:     true,
			ReportAddress: true,
			Readiness:     []retry.Option{retry.WithAttempts(5), retry.WithInitialDelay(time.Millisecond)},
		}
	})

	execute := func() (*state.RunRecord, error) {
		o := pipeline.New(cloud.Clients(), provisioning.DefaultOptions(), settings, pipeline.WithLogger(zap.NewNop()))
		return o.Execute(ctx)
	}

	Context("when every dependency exists", func() {
		It("should create the three resources with one shared suffix", func() {
			rec, err := execute()
			Expect(err).NotTo(HaveOccurred())

			Expect(rec.Suffix).To(MatchRegexp(suffixPattern.String()))
			Expect(rec.Names.PublicAddress).To(Equal("pip-" + rec.Suffix))
			Expect(rec.Names.NetworkInterface).To(Equal("nic-" + rec.Suffix))
			Expect(rec.Names.VirtualMachine).To(Equal("win-vm-" + rec.Suffix))
		})

		It("should wire the machine to the interface and the interface to the address", func() {
			rec, err := execute()
			Expect(err).NotTo(HaveOccurred())

			nic, ok := cloud.NetworkInterface("SDK-VM", rec.Names.NetworkInterface)
			Expect(ok).To(BeTrue())
			Expect(nic.Properties.IPConfigurations).To(HaveLen(1))
			Expect(*nic.Properties.IPConfigurations[0].Properties.PublicIPAddress.ID).To(Equal(rec.PublicAddressID))
			Expect(*nic.Location).To(Equal("eastus"))

			vm, ok := cloud.VirtualMachine("SDK-VM", rec.Names.VirtualMachine)
			Expect(ok).To(BeTrue())
			Expect(vm.Properties.NetworkProfile.NetworkInterfaces).To(HaveLen(1))
			Expect(*vm.Properties.NetworkProfile.NetworkInterfaces[0].ID).To(Equal(rec.NetworkInterfaceID))
			Expect(*vm.Location).To(Equal("eastus"))
		})

		It("should wait for the machine to report running before the lifecycle", func() {
			cloud.StartingPolls = 2

			rec, err := execute()
			Expect(err).NotTo(HaveOccurred())
			Expect(cloud.Count(provisioningtest.APIVirtualMachines, provisioningtest.OpInstanceView)).To(Equal(3))
			Expect(rec.PowerState).To(Equal(provisioning.PowerStateRunning))
		})
	})

	Context("when the public address hits a quota limit", func() {
		BeforeEach(func() {
			cloud.FailOn(provisioningtest.APIPublicIPAddresses, provisioningtest.OpBeginCreateOrUpdate,
				provisioningtest.ResponseError(http.StatusConflict, "PublicIPCountLimitReached"))
		})

		It("should never touch the network interface or the machine", func() {
			rec, err := execute()
			Expect(err).To(HaveOccurred())
			Expect(pipeline.FailedStage(err)).To(Equal(pipeline.StagePublicAddress))
			Expect(provisioning.IsConflict(err)).To(BeTrue())

			Expect(cloud.CallsTo(provisioningtest.APIInterfaces)).To(BeEmpty())
			Expect(cloud.CallsTo(provisioningtest.APISubnets)).To(BeEmpty())
			Expect(cloud.CallsTo(provisioningtest.APIVirtualMachines)).To(BeEmpty())

			Expect(rec.Status).To(Equal(state.RunFailed))
			Expect(rec.PublicAddressID).To(BeEmpty())
		})
	})

	Context("when the machine is power-cycled", func() {
		It("should deallocate and then power on, awaiting each", func() {
			_, err := execute()
			Expect(err).NotTo(HaveOccurred())

			var lifecycle []string
			for _, call := range cloud.CallsTo(provisioningtest.APIVirtualMachines) {
				switch call.Op {
				case provisioningtest.OpBeginDeallocate, provisioningtest.OpBeginStart,
					provisioningtest.Await(provisioningtest.OpBeginDeallocate), provisioningtest.Await(provisioningtest.OpBeginStart):
					lifecycle = append(lifecycle, call.Op)
				}
			}
			Expect(lifecycle).To(Equal([]string{
				provisioningtest.OpBeginDeallocate,
				provisioningtest.Await(provisioningtest.OpBeginDeallocate),
				provisioningtest.OpBeginStart,
				provisioningtest.Await(provisioningtest.OpBeginStart),
			}))
		})

		It("should leave the machine deallocated when power-on fails", func() {
			cloud.FailOn(provisioningtest.APIVirtualMachines, provisioningtest.Await(provisioningtest.OpBeginStart),
				provisioningtest.ResponseError(http.StatusConflict, "AllocationFailed"))

			rec, err := execute()
			Expect(err).To(HaveOccurred())
			Expect(pipeline.FailedStage(err)).To(Equal(pipeline.StagePowerOn))
			Expect(rec.VirtualMachineID).NotTo(BeEmpty())
			Expect(cloud.Len(provisioningtest.APIVirtualMachines)).To(Equal(1))
		})
	})

	Context("when the same names are provisioned twice", func() {
		It("should update the resources in place", func() {
			settings.Naming.Now = func() time.Time { return time.Unix(1700001234, 0) }
			settings.Lifecycle = false

			first, err := execute()
			Expect(err).NotTo(HaveOccurred())
			second, err := execute()
			Expect(err).NotTo(HaveOccurred())

			Expect(second.PublicAddressID).To(Equal(first.PublicAddressID))
			Expect(second.NetworkInterfaceID).To(Equal(first.NetworkInterfaceID))
			Expect(second.VirtualMachineID).To(Equal(first.VirtualMachineID))
			Expect(cloud.Len(provisioningtest.APIPublicIPAddresses)).To(Equal(1))
			Expect(cloud.Len(provisioningtest.APIInterfaces)).To(Equal(1))
			Expect(cloud.Len(provisioningtest.APIVirtualMachines)).To(Equal(1))
			Expect(cloud.Writes(provisioningtest.APIVirtualMachines, "SDK-VM", "win-vm-1234")).To(Equal(2))
		})
	})
})
