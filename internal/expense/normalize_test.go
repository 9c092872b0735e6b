package expense

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/pennyledger/receipt-pipeline/internal/extraction"
)

var _ = Describe("NormalizeLineItems", func() {
	var (
		input  []extraction.Item
		output []NormalizedItem
	)

	JustBeforeEach(func() {
		output = NormalizeLineItems(input)
	})

	When("a weight detail line follows a scale-weighed item", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Bananas", Quantity: extraction.NumberOf(1)},
				{RawDescription: "0.690 lb @ 1 lb /0.50"},
			}
		})

		It("should merge into a single item", func() {
			Expect(output).To(HaveLen(1))
		})

		It("should take quantity and unit from the detail line", func() {
			Expect(output[0].Quantity).To(BeNumerically("~", 0.69, 1e-9))
			Expect(output[0].Unit).To(Equal("lb"))
		})

		It("should take the unit price from the /price token", func() {
			Expect(output[0].UnitPrice).To(Equal(0.50))
		})

		It("should derive the total as quantity times unit price", func() {
			Expect(output[0].TotalPrice).To(Equal(0.35))
		})
	})

	When("the detail line has no space before the unit", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Bananas", Quantity: extraction.NumberOf(1)},
				{RawDescription: "0.69lb @ 1lb /0.50"},
			}
		})

		It("should merge the same as the spaced form", func() {
			Expect(output).To(HaveLen(1))
			Expect(output[0].Quantity).To(BeNumerically("~", 0.69, 1e-9))
			Expect(output[0].Unit).To(Equal("lb"))
			Expect(output[0].UnitPrice).To(Equal(0.50))
			Expect(output[0].TotalPrice).To(Equal(0.35))
		})
	})

	When("the detail line carries its own distinguishable total", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Gala Apples"},
				{RawDescription: "2 lb @ /1.25 2.50"},
			}
		})

		It("should use the printed line total", func() {
			Expect(output).To(HaveLen(1))
			Expect(output[0].UnitPrice).To(Equal(1.25))
			Expect(output[0].TotalPrice).To(Equal(2.50))
		})
	})

	When("the detail line has only an @price", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Yellow Onions"},
				{RawDescription: "1.2 kg @ 0.99"},
			}
		})

		It("should fall back to the @ token for the unit price", func() {
			Expect(output).To(HaveLen(1))
			Expect(output[0].Unit).To(Equal("kg"))
			Expect(output[0].UnitPrice).To(Equal(0.99))
			Expect(output[0].TotalPrice).To(Equal(1.19))
		})
	})

	When("a weight detail line appears first", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{RawDescription: "0.690 lb @ 1 lb /0.50"},
			}
		})

		It("should keep it as a standalone item", func() {
			Expect(output).To(HaveLen(1))
			Expect(output[0].Name).To(Equal("0.690 lb @ 1 lb /0.50"))
			Expect(output[0].Quantity).To(Equal(1.0))
		})
	})

	When("an item merely mentions a weight unit", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Olive Oil", Quantity: extraction.NumberOf(1), TotalPrice: extraction.NumberOf(8.99)},
				{Description: "Flour 5 lb bag", Quantity: extraction.NumberOf(1), TotalPrice: extraction.NumberOf(3.49)},
			}
		})

		It("should not merge without a price marker", func() {
			Expect(output).To(HaveLen(2))
			Expect(output[1].Name).To(Equal("Flour 5 lb bag"))
		})
	})

	When("the previous item already has a total and the detail has none", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Grapes", TotalPrice: extraction.NumberOf(4.20)},
				{RawDescription: "1.40 lb @ 1 lb /3.00"},
			}
		})

		It("should leave the existing total untouched", func() {
			Expect(output).To(HaveLen(1))
			Expect(output[0].TotalPrice).To(Equal(4.20))
			Expect(output[0].UnitPrice).To(Equal(3.00))
		})
	})

	When("the total is missing but quantity and unit price are present", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Eggs", Quantity: extraction.NumberOf(3), UnitPrice: extraction.NumberOf(2.00)},
			}
		})

		It("should backfill total as quantity times unit price", func() {
			Expect(output[0].TotalPrice).To(Equal(6.00))
		})
	})

	When("the unit price is missing but total and quantity are present", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Yogurt", Quantity: extraction.NumberOf(4), TotalPrice: extraction.NumberOf(10.00)},
			}
		})

		It("should back-compute the unit price", func() {
			Expect(output[0].UnitPrice).To(Equal(2.50))
		})
	})

	When("fields are missing or unusable", func() {
		BeforeEach(func() {
			input = []extraction.Item{
				{Description: "Mystery Item"},
			}
		})

		It("should apply the defaults", func() {
			Expect(output[0].Quantity).To(Equal(1.0))
			Expect(output[0].Unit).To(Equal("ea"))
			Expect(output[0].UnitPrice).To(BeZero())
			Expect(output[0].TotalPrice).To(BeZero())
		})
	})

	When("an item has no description at all", func() {
		BeforeEach(func() {
			input = []extraction.Item{{Quantity: extraction.NumberOf(2)}}
		})

		It("should get a placeholder name", func() {
			Expect(output[0].Name).To(Equal("Unknown Item"))
		})
	})

	When("a detail line has more numbers than the heuristic expects", func() {
		BeforeEach(func() {
			// a count, a weight and a price on one line: the last-token
			// heuristic reads the trailing number as the line total
			input = []extraction.Item{
				{Description: "Roma Tomatoes"},
				{RawDescription: "4 ct 1.80 lb @ 1 lb /2.00 3.60"},
			}
		})

		It("should apply the best-effort last-token reading", func() {
			Expect(output).To(HaveLen(1))
			Expect(output[0].Quantity).To(BeNumerically("~", 1.8, 1e-9))
			Expect(output[0].UnitPrice).To(Equal(2.00))
			Expect(output[0].TotalPrice).To(Equal(3.60))
		})
	})
})
