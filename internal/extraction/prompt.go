package extraction

// receiptPromptHeader is shared by all structured-extraction providers. The
// image or OCR text is appended by the adapter.
const receiptPromptHeader = `You are analyzing a grocery receipt. Extract the store name, the purchase date, the receipt total, and every purchased line item.

For each line item report:
- "raw_description": the line exactly as printed on the receipt
- "description": a cleaned-up human-readable item name
- "quantity": how many units were purchased (number)
- "quantity_unit": the unit of the quantity, e.g. "ea", "lb", "kg", "oz"
- "unit_price": the price per unit (number)
- "total_price": the total charged for the line (number)

Keep weight sub-lines such as "0.69 lb @ 1 lb /0.50" as their own item with the printed text in "raw_description"; do not try to merge them yourself.

Return ONLY valid JSON in this exact format:
{
  "store": "Store Name",
  "date": "YYYY-MM-DD",
  "total": 0.00,
  "items": [
    {
      "raw_description": "",
      "description": "",
      "quantity": 1,
      "quantity_unit": "ea",
      "unit_price": 0.00,
      "total_price": 0.00
    }
  ]
}

Important:
- The date must be in YYYY-MM-DD format
- Numeric fields must be numbers, not strings
- Skip tax, subtotal, total, change and payment lines in "items"
- If you cannot find a field, use null for that field
- Do not include any text before or after the JSON
- Do not use markdown code blocks`
