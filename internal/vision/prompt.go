package vision

// shelfPrompt instructs the model to read supermarket shelf labels and flyers.
const shelfPrompt = `You are reading a photo of a Brazilian supermarket shelf label or a printed flyer.

Extract EVERY product that has a visible shelf price. For each product return:
- "name": product name as printed, without the price
- "brand": brand name, or null when not visible
- "ean": barcode digits (8 or 13 digits) when legible, otherwise null
- "unit_size": package size as printed, e.g. "1kg", "500g", "2L", "12x350ml", or null
- "retail_price": the regular per-unit shelf price as a number (use a dot as decimal separator), or null
- "wholesale_price": the bulk ("atacado") price as a number, or null when there is no wholesale offer
- "min_wholesale_qty": minimum quantity (integer) required for the wholesale price, or null
- "confidence": your confidence for this item from 0 to 1

PRICE RULES:
- Keep retail and wholesale prices separate. A label such as "A partir de 6 un. R$ 4,49" is a wholesale price with min_wholesale_qty 6.
- IGNORE reference values that are not the product's shelf price: "preço por kg", "R$/kg", "preço por litro", "valor do kg", unit-price footnotes and installment values.
- Never invent a price. When a price is not legible use null and lower the confidence.

Return ONLY JSON in this exact shape, with no commentary:
{"items":[{"name":"...","brand":"...","ean":"...","unit_size":"...","retail_price":0.0,"wholesale_price":null,"min_wholesale_qty":null,"confidence":0.0}]}`

// Prompt returns the instruction sent alongside every image.
func Prompt() string {
	return shelfPrompt
}
