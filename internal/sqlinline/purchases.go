package sqlinline

const QInsertPurchase = `--sql 214da0ed-f755-4b5f-8596-5c681997229e
insert into credit_purchases(id, user_id, charge_id, package, credits, amount, currency, status, created_at, updated_at)
values ($1::uuid, $2::uuid, $3::text, $4::text, $5::bigint, $6::bigint, $7::text, $8::text, now(), now());
`

const QSelectPurchaseByCharge = `--sql a2a066c9-1aa2-4aef-bc56-02e52c7cf050
select id, user_id, charge_id, package, credits, amount, currency, status, created_at, updated_at
from credit_purchases
where charge_id = $1::text
limit 1;
`

const QUpdatePurchaseStatus = `--sql bc7e361b-9e91-4ac3-99df-65a7d69f208b
update credit_purchases
set status = $2::text,
    updated_at = now()
where charge_id = $1::text;
`
